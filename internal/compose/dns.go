package compose

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/fabric"
	"github.com/nate-c/lockbox/internal/state"
)

const (
	dnsPollAttempts = 10
	dnsPollInterval = time.Second
)

// serviceContainer pairs a running record with the service name it was
// derived from, so injectDNS can build both the short and project-qualified
// hostnames other services resolve each other by.
type serviceContainer struct {
	service string
	rec     *state.Record
}

// resolveAll concurrently polls every container's IP address (up to
// dnsPollAttempts, one second apart), returning once all pollers finish —
// each one bounded independently, so a slow container doesn't stall others.
func resolveAll(ctx context.Context, be backend.Backend, log *slog.Logger, containers []serviceContainer) map[string]string {
	ips := make([]string, len(containers))
	g, gctx := errgroup.WithContext(ctx)
	for i, sc := range containers {
		i, sc := i, sc
		g.Go(func() error {
			ips[i] = pollIP(gctx, be, sc.rec.ID, log)
			return nil
		})
	}
	_ = g.Wait() // pollIP never returns an error; errgroup here is purely a bounded fan-out

	dns := make(map[string]string, len(containers)*2)
	for i, sc := range containers {
		dns[sc.service] = ips[i]
		dns[sc.rec.Name] = ips[i]
	}
	return dns
}

func pollIP(ctx context.Context, be backend.Backend, id string, log *slog.Logger) string {
	var ip string
	for attempt := 0; attempt < dnsPollAttempts; attempt++ {
		ip = fabric.ResolveIP(ctx, be, id, log)
		if ip != "" && ip != "127.0.0.1" {
			return ip
		}
		select {
		case <-ctx.Done():
			return ip
		case <-time.After(dnsPollInterval):
		}
	}
	return ip
}

// injectDNS appends every entry in dns to each container's own /etc/hosts
//. Per-container failures are logged, not
// fatal to the rest of the project.
func injectDNS(ctx context.Context, be backend.Backend, log *slog.Logger, containers []serviceContainer, dns map[string]string) {
	var lines string
	for name, ip := range dns {
		lines += fmt.Sprintf("echo %q >> /etc/hosts\n", ip+" "+name)
	}
	for _, sc := range containers {
		code, err := be.Exec(ctx, sc.rec.ID, lines, backend.ExecOpts{})
		if err != nil || code != 0 {
			log.WarnContext(ctx, "compose: dns injection failed", "container_id", sc.rec.ID, "error", err, "exit_code", code)
		}
	}
}
