package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/nate-c/lockbox/internal/supervisor"
)

// InternalDaemonCmd runs the supervisor loop for one container. It is the
// hidden entry point engine.Start spawns in detached mode; it is never
// invoked directly by an operator.
type InternalDaemonCmd struct {
	ID string `arg:"" help:"container ID"`
}

func (c *InternalDaemonCmd) Run(cctx *Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	sup, err := supervisor.New(cctx.Backend, cctx.Store, cctx.InstallRoot, c.ID)
	if err != nil {
		return err
	}
	return sup.Run(ctx)
}
