// Package engine implements the create/start/stop/remove operations shared
// by the `run` CLI command and the Compose Orchestrator's per-service
// startup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/build"
	"github.com/nate-c/lockbox/internal/hostsvc"
	"github.com/nate-c/lockbox/internal/state"
	"github.com/nate-c/lockbox/internal/supervisor"
)

// ErrPortTaken is returned by Create when a requested host port is already
// bound by another record.
var ErrPortTaken = errors.New("engine: port already taken")

// CreateSpec carries everything needed to materialize a new container
// record, mirroring the `run` CLI flags and the compose manifest's service
// descriptor fields.
type CreateSpec struct {
	Name     string
	Image    string
	Ports    []state.PortMapping
	Volumes  []state.VolumeMapping
	Envs     []string
	Restart  state.RestartPolicy
	Labels   map[string]string
	Network  string
	Command  string
	Workdir  string
}

// Create provisions a container root filesystem from spec.Image and
// persists a new record in state.starting. It does not start the
// supervisor; call Start for that.
func Create(ctx context.Context, store *state.Store, be backend.Backend, installRoot string, spec CreateSpec) (*state.Record, error) {
	if err := checkPortsFree(store, spec.Ports); err != nil {
		return nil, err
	}

	if !build.Exists(installRoot, spec.Image) {
		return nil, fmt.Errorf("engine: image %q not found", spec.Image)
	}
	meta, err := build.LoadMetadata(installRoot, spec.Image)
	if err != nil {
		return nil, fmt.Errorf("engine: load image metadata: %w", err)
	}

	command := spec.Command
	if command == "" && meta.EntrypointCommand != nil {
		command = *meta.EntrypointCommand
	}
	workdir := spec.Workdir
	if workdir == "" {
		workdir = meta.WorkingDirectory
	}
	if workdir == "" {
		workdir = "/"
	}

	network := spec.Network
	if network == "" {
		network = "bridge"
	}

	id := state.NewID()
	rootDir := filepath.Join(installRoot, "containers", id)
	imagePaths := build.Paths(installRoot, spec.Image)
	if err := be.Import(ctx, id, rootDir, imagePaths.Tar); err != nil {
		return nil, fmt.Errorf("engine: import image %q: %w", spec.Image, err)
	}

	rec := &state.Record{
		ID:      id,
		Name:    spec.Name,
		Image:   spec.Image,
		Status:  state.StatusStarting,
		Ports:   spec.Ports,
		Volumes: spec.Volumes,
		Envs:    spec.Envs,
		Command: command,
		Workdir: workdir,
		Created: time.Now(),
		Root:    rootDir,
		Restart: spec.Restart,
		Labels:  spec.Labels,
		Network: network,
	}
	if rec.Restart == "" {
		rec.Restart = state.RestartNo
	}

	if err := store.Create(rec); err != nil {
		_ = be.Destroy(ctx, id)
		return nil, fmt.Errorf("engine: persist record: %w", err)
	}
	return rec, nil
}

func checkPortsFree(store *state.Store, wanted []state.PortMapping) error {
	if len(wanted) == 0 {
		return nil
	}
	existing, err := store.List()
	if err != nil {
		return fmt.Errorf("engine: list records: %w", err)
	}
	for _, w := range wanted {
		for _, rec := range existing {
			if rec.Status == state.StatusExited || rec.Status == state.StatusError {
				continue
			}
			for _, p := range rec.Ports {
				if p.Host == w.Host {
					return fmt.Errorf("%w: host port %d used by %s", ErrPortTaken, w.Host, rec.ID)
				}
			}
		}
	}
	return nil
}

// Start launches rec's supervisor, either registered with the host init
// system (wantService) or as a plain detached process, recording the final
// mode onto the record.
func Start(ctx context.Context, store *state.Store, installRoot, supervisorBinary string, rec *state.Record, wantService bool, adapter hostsvc.Adapter, log *slog.Logger) error {
	if err := supervisor.ClearStopRequest(installRoot, rec.ID); err != nil {
		return fmt.Errorf("engine: clear stop request: %w", err)
	}

	if wantService {
		mode, name, err := hostsvc.RegisterOrFallback(ctx, adapter, log, rec.ID, supervisorBinary)
		if err != nil {
			return fmt.Errorf("engine: start supervisor: %w", err)
		}
		rec.ServiceMode = string(mode)
		if mode == hostsvc.ModeService {
			rec.ServiceEnabled = true
			rec.ServiceName = name
		}
	} else {
		cmd := exec.Command(supervisorBinary, "internal-daemon", rec.ID)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("engine: spawn supervisor: %w", err)
		}
		rec.ServiceMode = string(hostsvc.ModeDetached)
	}

	return store.Save(rec)
}

// Stop signals rec's running container to stop: it records an explicit
// stop request and terminates the backend's
// processes so the current exec call unblocks.
func Stop(ctx context.Context, be backend.Backend, store *state.Store, installRoot string, rec *state.Record) error {
	if err := supervisor.RequestStop(installRoot, rec.ID); err != nil {
		return fmt.Errorf("engine: request stop: %w", err)
	}
	if err := be.Terminate(ctx, rec.ID); err != nil {
		return fmt.Errorf("engine: terminate: %w", err)
	}
	if rec.ServiceEnabled {
		adapter := hostsvc.Default()
		if err := adapter.Stop(ctx, rec.ServiceName); err != nil {
			return fmt.Errorf("engine: stop service: %w", err)
		}
	}
	return waitForStatus(store, rec.ID, state.StatusExited, 5*time.Second)
}

func waitForStatus(store *state.Store, id string, want state.Status, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		rec, err := store.Get(id)
		if err != nil {
			return err
		}
		if rec.Status == want {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

// Remove stops (if live) and destroys a container: backend root, host
// service registration, and the state record.
func Remove(ctx context.Context, be backend.Backend, store *state.Store, installRoot string, rec *state.Record) error {
	if rec.Status == state.StatusRunning || rec.Status == state.StatusRestarting || rec.Status == state.StatusStarting {
		if err := Stop(ctx, be, store, installRoot, rec); err != nil {
			return err
		}
	}
	if rec.ServiceEnabled {
		adapter := hostsvc.Default()
		if err := adapter.Deregister(ctx, rec.ID, rec.ServiceName); err != nil {
			return fmt.Errorf("engine: deregister service: %w", err)
		}
	}
	if err := be.Destroy(ctx, rec.ID); err != nil {
		return fmt.Errorf("engine: destroy: %w", err)
	}
	if err := supervisor.ClearStopRequest(installRoot, rec.ID); err != nil {
		return fmt.Errorf("engine: clear stop request: %w", err)
	}
	return store.Remove(rec.ID)
}

// Restart stops and relaunches rec's supervisor without recreating the
// backing root filesystem, matching the CLI table's "remove+recreate with
// same record" by reusing the existing record rather than minting a new id.
func Restart(ctx context.Context, be backend.Backend, store *state.Store, installRoot, supervisorBinary string, rec *state.Record, adapter hostsvc.Adapter, log *slog.Logger) error {
	if rec.Status == state.StatusRunning || rec.Status == state.StatusRestarting {
		if err := Stop(ctx, be, store, installRoot, rec); err != nil {
			return err
		}
	}
	wantService := rec.ServiceEnabled
	return Start(ctx, store, installRoot, supervisorBinary, rec, wantService, adapter, log)
}
