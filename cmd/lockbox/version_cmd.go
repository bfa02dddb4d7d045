package main

import (
	"fmt"

	"github.com/nate-c/lockbox/internal/version"
)

type VersionCmd struct{}

func (c *VersionCmd) Run(cctx *Context) error {
	info := version.Get()
	fmt.Printf("Git Commit: %s\n", info.GitCommit)
	fmt.Printf("Build Time: %s\n", info.BuildTime)
	if info.BuildInfo != nil {
		fmt.Printf("Go Version: %s\n", info.BuildInfo.GoVersion)
	}
	return nil
}
