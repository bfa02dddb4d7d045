package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
)

type PsCmd struct {
	All bool `short:"a" help:"include exited and errored containers"`
}

func (c *PsCmd) Run(cctx *Context) error {
	recs, err := cctx.Store.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tIMAGE\tSTATUS\tCREATED\tPORTS")
	for _, r := range recs {
		if !c.All && r.Status != "running" && r.Status != "starting" && r.Status != "restarting" {
			continue
		}
		ports := ""
		for i, p := range r.Ports {
			if i > 0 {
				ports += ", "
			}
			ports += fmt.Sprintf("%d:%d", p.Host, p.Container)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Name, r.Image, r.Status, humanize.Time(r.Created), ports)
	}
	return nil
}
