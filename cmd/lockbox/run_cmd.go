package main

import (
	"context"
	"fmt"
	"time"

	"github.com/nate-c/lockbox/internal/engine"
	"github.com/nate-c/lockbox/internal/state"
)

type RunCmd struct {
	Image   string   `arg:"" help:"image tag to run"`
	Command []string `arg:"" optional:"" help:"entrypoint command (defaults to the image's configured command)"`

	Name        string   `help:"container name (defaults to a generated name)"`
	Ports       []string `short:"p" help:"HOST:CONTAINER port mapping, repeatable"`
	Volumes     []string `short:"v" help:"HOST:CONTAINER volume mapping, repeatable"`
	Env         []string `short:"e" help:"KEY=VALUE environment variable, repeatable"`
	Detach      bool     `short:"d" help:"accepted for compatibility; containers always run detached"`
	Restart     string   `default:"no" help:"restart policy: no, always, on-failure, unless-stopped"`
	Labels      []string `short:"l" help:"KEY=VALUE label, repeatable"`
	Network     string   `default:"bridge" help:"network name"`
	Service     bool     `help:"register with the host init system instead of a plain detached process"`
	NoService   bool     `help:"force a plain detached process even if host service registration would succeed"`
}

func (c *RunCmd) Run(cctx *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ports, err := parsePortFlags(c.Ports)
	if err != nil {
		return err
	}
	volumes, err := parseVolumeFlags(c.Volumes)
	if err != nil {
		return err
	}
	labels, err := parseKVToMap(c.Labels)
	if err != nil {
		return err
	}

	name := c.Name
	if name == "" {
		name = state.NewRandomName(time.Now().UnixNano())
	}

	var command string
	if len(c.Command) > 0 {
		command = joinArgs(c.Command)
	}

	rec, err := engine.Create(ctx, cctx.Store, cctx.Backend, cctx.InstallRoot, engine.CreateSpec{
		Name:    name,
		Image:   c.Image,
		Ports:   ports,
		Volumes: volumes,
		Envs:    c.Env,
		Restart: state.RestartPolicy(c.Restart),
		Labels:  labels,
		Network: c.Network,
		Command: command,
	})
	if err != nil {
		return err
	}

	wantService := c.Service && !c.NoService
	if err := engine.Start(ctx, cctx.Store, cctx.InstallRoot, cctx.SupervisorBinary, rec, wantService, cctx.Adapter, cctx.Log); err != nil {
		return err
	}

	fmt.Println(rec.ID)
	return nil
}
