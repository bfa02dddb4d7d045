package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nate-c/lockbox/internal/compose"
)

// MonitorDaemonCmd runs one project's auto-update monitor loop. It is the
// hidden entry point Orchestrator.Up spawns when any service enables
// auto-update; it is never invoked directly by an operator.
type MonitorDaemonCmd struct {
	ManifestPath string `arg:"" help:"path to the compose manifest"`
	Project      string `arg:"" help:"project name"`
}

func (c *MonitorDaemonCmd) Run(cctx *Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	mon := &compose.Monitor{
		ManifestPath:     c.ManifestPath,
		ProjectDir:       filepath.Dir(c.ManifestPath),
		Project:          c.Project,
		InstallRoot:      cctx.InstallRoot,
		Store:            cctx.Store,
		Backend:          cctx.Backend,
		Adapter:          cctx.Adapter,
		SupervisorBinary: cctx.SupervisorBinary,
		Log:              cctx.Log,
	}
	return mon.Run(ctx)
}
