package main

import (
	"context"

	"github.com/nate-c/lockbox/internal/compose"
)

// CreateCmd groups the compose-style project subcommands.
type CreateCmd struct {
	Up   CreateUpCmd   `cmd:"" help:"bring a project's services up"`
	Down CreateDownCmd `cmd:"" help:"tear a project's services down"`
}

type CreateUpCmd struct {
	File          string `name:"file" short:"f" default:"lockbox-compose.yml" help:"path to the compose manifest"`
	EnvFile       string `name:"env-file" help:"path to a .env file (defaults to .env next to the manifest)"`
	ForceRecreate bool   `name:"force-recreate" help:"recreate every service even if its config is unchanged"`
	NoRecreate    bool   `name:"no-recreate" help:"never recreate a service that already has a container"`
	NoBuild       bool   `name:"no-build" help:"skip building service images from their build: context"`
	RemoveOrphans bool   `name:"remove-orphans" help:"remove containers for services no longer in the manifest"`
	Service       bool   `name:"service" help:"register each container with the host's OS service manager"`
}

func (c *CreateUpCmd) Run(cctx *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := &compose.Orchestrator{
		Store:            cctx.Store,
		Backend:          cctx.Backend,
		InstallRoot:      cctx.InstallRoot,
		Log:              cctx.Log,
		Adapter:          cctx.Adapter,
		SupervisorBinary: cctx.SupervisorBinary,
	}
	return o.Up(ctx, compose.UpOptions{
		ManifestPath:  c.File,
		EnvFile:       c.EnvFile,
		ForceRecreate: c.ForceRecreate,
		NoRecreate:    c.NoRecreate,
		NoBuild:       c.NoBuild,
		RemoveOrphans: c.RemoveOrphans,
		WantService:   c.Service,
	})
}

type CreateDownCmd struct {
	File          string `name:"file" short:"f" default:"lockbox-compose.yml" help:"path to the compose manifest"`
	RemoveOrphans bool   `name:"remove-orphans" help:"also remove containers for services no longer in the manifest"`
	Rmi           string `name:"rmi" default:"none" enum:"none,local,all" help:"remove images built or pulled for this project"`
}

func (c *CreateDownCmd) Run(cctx *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o := &compose.Orchestrator{
		Store:            cctx.Store,
		Backend:          cctx.Backend,
		InstallRoot:      cctx.InstallRoot,
		Log:              cctx.Log,
		Adapter:          cctx.Adapter,
		SupervisorBinary: cctx.SupervisorBinary,
	}
	return o.Down(ctx, compose.DownOptions{
		ManifestPath:  c.File,
		RemoveOrphans: c.RemoveOrphans,
		RemoveImages:  c.Rmi,
	})
}
