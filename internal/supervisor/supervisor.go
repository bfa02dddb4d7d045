// Package supervisor owns the long-lived process responsible for exactly
// one running container: applying mounts and environment, launching the
// entrypoint, enforcing restart policy, and keeping the container record's
// status in sync.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/fabric"
	"github.com/nate-c/lockbox/internal/state"
)

const restartBackoff = 1 * time.Second

var tracer = otel.Tracer("github.com/nate-c/lockbox/internal/supervisor")

// Supervisor drives one container record through its lifecycle.
type Supervisor struct {
	be          backend.Backend
	store       *state.Store
	installRoot string
	id          string
	log         *slog.Logger

	fab *fabric.Fabric
}

// New constructs a Supervisor for container id, wiring a per-container
// rotating log file under the install root's logs directory.
func New(be backend.Backend, store *state.Store, installRoot, id string) (*Supervisor, error) {
	logDir := filepath.Join(installRoot, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: mkdir logs dir: %w", err)
	}
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, id+".log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
	log := slog.New(slog.NewJSONHandler(writer, nil)).With("container_id", id)

	return &Supervisor{
		be:          be,
		store:       store,
		installRoot: installRoot,
		id:          id,
		log:         log,
	}, nil
}

// Run executes the supervisor loop until the container exits for good or
// ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	rec, err := s.store.Get(s.id)
	if err != nil {
		return fmt.Errorf("supervisor: load record %s: %w", s.id, err)
	}

	if len(rec.Ports) > 0 {
		if err := s.startFabric(ctx, rec); err != nil {
			rec.Status = state.StatusError
			if saveErr := s.store.Save(rec); saveErr != nil {
				s.log.ErrorContext(ctx, "supervisor: persist error status", "error", saveErr)
			}
			return fmt.Errorf("supervisor: start fabric: %w", err)
		}
		defer s.fab.Stop()
	}

	if err := s.applyMounts(ctx, rec); err != nil {
		s.log.ErrorContext(ctx, "supervisor: apply mounts", "error", err)
	}
	if err := s.applyEnv(ctx, rec); err != nil {
		s.log.ErrorContext(ctx, "supervisor: apply environment", "error", err)
	}
	if err := s.store.Save(rec); err != nil {
		s.log.ErrorContext(ctx, "supervisor: persist mount state", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		iterCtx, span := tracer.Start(ctx, "supervisor.iteration")

		rec.Status = state.StatusRunning
		if err := s.store.Save(rec); err != nil {
			s.log.ErrorContext(ctx, "supervisor: persist running status", "error", err)
		}

		shellCmd := fmt.Sprintf("cd %q && %s", rec.Workdir, rec.Command)
		code, execErr := s.be.Exec(iterCtx, s.id, shellCmd, backend.ExecOpts{
			WorkDir: rec.Workdir,
			Env:     rec.Envs,
			Stdout:  os.Stdout,
			Stderr:  os.Stderr,
		})
		if execErr != nil {
			s.log.ErrorContext(ctx, "supervisor: entrypoint exec failed", "error", execErr)
			code = -1
		}
		s.log.InfoContext(ctx, "supervisor: entrypoint exited", "exit_code", code)
		span.SetAttributes(attribute.Int("exit_code", code))
		span.End()

		if !shouldRestart(rec.Restart, code, StopRequested(s.installRoot, s.id)) {
			rec.Status = state.StatusExited
			if err := s.store.Save(rec); err != nil {
				s.log.ErrorContext(ctx, "supervisor: persist exited status", "error", err)
			}
			return nil
		}

		rec.RestartCount++
		rec.Status = state.StatusRestarting
		if err := s.store.Save(rec); err != nil {
			s.log.ErrorContext(ctx, "supervisor: persist restarting status", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(restartBackoff):
		}

		if fresh, err := s.store.Get(s.id); err == nil {
			rec = fresh
		}
	}
}

// shouldRestart implements the restart policy decision. An explicit
// external stop request overrides every policy, not just unless-stopped:
// tracking "user-requested stop" as a flag distinct from status precisely
// so that `stop` actually stops a restart:always container instead of
// racing its own restart loop.
func shouldRestart(policy state.RestartPolicy, exitCode int, stopRequested bool) bool {
	if stopRequested {
		return false
	}
	switch policy {
	case state.RestartAlways:
		return true
	case state.RestartOnFailure:
		return exitCode != 0
	case state.RestartUnlessStopped:
		return true
	case state.RestartNo:
		return false
	default:
		return false
	}
}

func (s *Supervisor) startFabric(ctx context.Context, rec *state.Record) error {
	mappings := make([]fabric.Mapping, len(rec.Ports))
	for i, p := range rec.Ports {
		mappings[i] = fabric.Mapping{HostPort: p.Host, ContainerPort: p.Container}
	}
	targetIP := fabric.ResolveIP(ctx, s.be, s.id, s.log)
	s.fab = fabric.New(s.log, targetIP, mappings)
	return s.fab.Start(ctx)
}

// applyMounts binds each volume into the container and mounts /proc,
// recording the resulting mount points onto the record.
func (s *Supervisor) applyMounts(ctx context.Context, rec *state.Record) error {
	mounter, ok := s.be.(backend.Mounter)
	if !ok {
		return fmt.Errorf("supervisor: backend %s does not support mounts", s.be.Name())
	}

	specs := make([]backend.VolumeSpec, len(rec.Volumes))
	for i, v := range rec.Volumes {
		specs[i] = backend.VolumeSpec{HostPath: v.HostPath, ContainerPath: v.ContainerPath}
	}
	mounted, err := mounter.MountVolumes(ctx, s.id, specs)
	rec.Mounts = mounted
	if err != nil {
		return fmt.Errorf("mount volumes: %w", err)
	}
	if err := mounter.MountProcFS(ctx, s.id); err != nil {
		return fmt.Errorf("mount procfs: %w", err)
	}
	return nil
}

// applyEnv appends each KEY=VALUE pair to the container's profile so it is
// in effect before the entrypoint runs.
func (s *Supervisor) applyEnv(ctx context.Context, rec *state.Record) error {
	if len(rec.Envs) == 0 {
		return nil
	}
	script := "mkdir -p /etc/profile.d\n"
	for _, kv := range rec.Envs {
		script += fmt.Sprintf("echo %q >> /etc/profile.d/lockbox_env.sh\n", "export "+kv)
	}
	code, err := s.be.Exec(ctx, s.id, script, backend.ExecOpts{})
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("environment script exited %d", code)
	}
	return nil
}

// StopMarkerPath is the well-known location of a container's stop request
// marker, used to distinguish an externally requested stop from the
// container's own process exiting under the `unless-stopped` restart
// policy.
func StopMarkerPath(installRoot, id string) string {
	return filepath.Join(installRoot, "containers", id, ".stop-requested")
}

// RequestStop records that id's container was stopped by an external actor
// (the `stop` CLI command), not by the entrypoint exiting on its own.
func RequestStop(installRoot, id string) error {
	path := StopMarkerPath(installRoot, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// ClearStopRequest removes id's stop marker, called when a container is
// (re)started so a prior stop doesn't suppress `unless-stopped` restarts
// forever.
func ClearStopRequest(installRoot, id string) error {
	err := os.Remove(StopMarkerPath(installRoot, id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// StopRequested reports whether id's container was most recently stopped
// by an external actor.
func StopRequested(installRoot, id string) bool {
	_, err := os.Stat(StopMarkerPath(installRoot, id))
	return err == nil
}
