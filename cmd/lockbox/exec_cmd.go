package main

import (
	"context"
	"fmt"
	"os"

	loginshell "github.com/riywo/loginshell"
	"golang.org/x/term"

	"github.com/nate-c/lockbox/internal/backend"
)

type ExecCmd struct {
	Ident string   `arg:"" help:"container ID or name"`
	Cmd   []string `arg:"" optional:"" passthrough:"" help:"command to run (defaults to the login shell)"`
	IT    bool     `name:"it" help:"allocate a pty and attach the local terminal"`
}

func (c *ExecCmd) Run(cctx *Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec, err := cctx.Store.Resolve(c.Ident)
	if err != nil {
		return err
	}

	shellCmd := joinArgs(c.Cmd)
	if shellCmd == "" {
		shell, err := loginshell.Shell()
		if err != nil {
			shell = "/bin/sh"
		}
		shellCmd = shell
	}

	opts := backend.ExecOpts{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		TTY:    c.IT,
	}

	if c.IT && term.IsTerminal(int(os.Stdin.Fd())) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("lockbox: put terminal in raw mode: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)
	}

	code, err := cctx.Backend.Exec(ctx, rec.ID, shellCmd, opts)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("lockbox: command exited %d", code)
	}
	return nil
}
