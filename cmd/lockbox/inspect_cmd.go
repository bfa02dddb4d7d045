package main

import (
	"encoding/json"
	"fmt"
	"os"
)

type InspectCmd struct {
	Ident string `arg:"" help:"container ID or name"`
}

func (c *InspectCmd) Run(cctx *Context) error {
	rec, err := cctx.Store.Resolve(c.Ident)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("lockbox: encode record: %w", err)
	}
	return nil
}
