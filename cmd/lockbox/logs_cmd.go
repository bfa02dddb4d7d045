package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	humanize "github.com/dustin/go-humanize"
)

type LogsCmd struct {
	Ident  string `arg:"" help:"container ID or name"`
	Follow bool   `short:"f" help:"keep reading as the log file grows"`
}

func (c *LogsCmd) Run(cctx *Context) error {
	rec, err := cctx.Store.Resolve(c.Ident)
	if err != nil {
		return err
	}
	path := filepath.Join(cctx.InstallRoot, "logs", rec.ID+".log")

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "lockbox: no log file yet for %s\n", rec.ID)
			return nil
		}
		return err
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil {
		fmt.Fprintf(os.Stderr, "# %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
	}

	if _, err := io.Copy(os.Stdout, f); err != nil {
		return err
	}
	if !c.Follow {
		return nil
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fmt.Print(line)
		}
		if err == io.EOF {
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if err != nil {
			return err
		}
	}
}
