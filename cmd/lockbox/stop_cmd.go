package main

import (
	"context"
	"fmt"

	"github.com/nate-c/lockbox/internal/engine"
)

type StopCmd struct {
	Ident string `arg:"" help:"container ID or name"`
}

func (c *StopCmd) Run(cctx *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := cctx.Store.Resolve(c.Ident)
	if err != nil {
		return err
	}
	if err := engine.Stop(ctx, cctx.Backend, cctx.Store, cctx.InstallRoot, rec); err != nil {
		return err
	}
	fmt.Println(rec.ID)
	return nil
}
