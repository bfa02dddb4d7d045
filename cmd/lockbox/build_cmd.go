package main

import (
	"context"
	"fmt"
	"os"

	"github.com/nate-c/lockbox/internal/build"
)

type BuildCmd struct {
	Path string `arg:"" help:"build context directory"`
	Tag  string `short:"t" required:"" help:"tag to assign the built image"`
}

func (c *BuildCmd) Run(cctx *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	instrPath, err := build.ResolveInstructionFile(c.Path)
	if err != nil {
		return err
	}
	f, err := os.Open(instrPath)
	if err != nil {
		return fmt.Errorf("lockbox: open instruction file: %w", err)
	}
	defer f.Close()

	instructions, err := build.ParseInstructions(f)
	if err != nil {
		return err
	}

	b, err := build.New(ctx, cctx.Backend, cctx.Log, cctx.InstallRoot, c.Path, c.Tag)
	if err != nil {
		return err
	}
	if err := b.Run(instructions); err != nil {
		return err
	}
	fmt.Printf("%s\n", c.Tag)
	return nil
}
