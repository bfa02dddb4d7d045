// Package hostsvc registers and deregisters a container's supervisor with
// the host init system, so the container survives a host restart.
package hostsvc

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// Mode reports how a container's supervisor ended up running.
type Mode string

const (
	// ModeService means the supervisor is registered with the host init
	// system and will be relaunched across host reboots.
	ModeService Mode = "service"
	// ModeDetached means service registration failed and the supervisor
	// was instead spawned as a plain detached process for this boot only.
	ModeDetached Mode = "detached"
)

// Adapter is the per-platform contract for registering a supervisor
// invocation with the host's service manager.
type Adapter interface {
	// Register installs a service that runs
	// "<supervisorBinary> internal-daemon <id>" and returns the name it was
	// registered under.
	Register(ctx context.Context, id, supervisorBinary string) (serviceName string, err error)
	// Deregister reverses Register, removing the service definition.
	Deregister(ctx context.Context, id, serviceName string) error
	// Start starts a previously registered service.
	Start(ctx context.Context, serviceName string) error
	// Stop stops a previously registered service.
	Stop(ctx context.Context, serviceName string) error
}

// Default selects the host init system adapter for the current platform.
// As with backend.Default, this is the one place a runtime.GOOS branch is
// allowed to live at a call-site layer.
func Default() Adapter {
	if runtime.GOOS == "windows" {
		return NewSCM()
	}
	return NewSystemd()
}

// RegisterOrFallback tries to register id's supervisor with the host init
// system. If registration fails, it falls back to spawning the supervisor
// as a plain detached process for the current boot; the record reflects
// the final mode either way.
func RegisterOrFallback(ctx context.Context, adapter Adapter, log *slog.Logger, id, supervisorBinary string) (Mode, string, error) {
	name, err := adapter.Register(ctx, id, supervisorBinary)
	if err == nil {
		return ModeService, name, nil
	}
	log.WarnContext(ctx, "hostsvc: service registration failed, falling back to detached spawn", "id", id, "error", err)

	// A detached process must outlive this call's context (the whole point
	// is that no init system will restart it), so it is not tied to ctx.
	cmd := exec.Command(supervisorBinary, "internal-daemon", id)
	if spawnErr := cmd.Start(); spawnErr != nil {
		return "", "", fmt.Errorf("hostsvc: detached fallback spawn failed after registration error %v: %w", err, spawnErr)
	}
	return ModeDetached, "", nil
}
