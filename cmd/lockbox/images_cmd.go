package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"

	"github.com/nate-c/lockbox/internal/build"
)

type ImagesCmd struct{}

func (c *ImagesCmd) Run(cctx *Context) error {
	infos, err := build.List(cctx.InstallRoot)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "TAG\tSIZE\tCREATED")
	for _, i := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\n", i.Tag, humanize.Bytes(uint64(i.Size)), humanize.Time(i.Created))
	}
	return nil
}
