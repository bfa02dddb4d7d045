package compose

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/build"
	"github.com/nate-c/lockbox/internal/engine"
	"github.com/nate-c/lockbox/internal/hostsvc"
	"github.com/nate-c/lockbox/internal/state"
)

var tracer = otel.Tracer("github.com/nate-c/lockbox/internal/compose")

// Orchestrator drives `create up`/`create down` over one manifest.
type Orchestrator struct {
	Store            *state.Store
	Backend          backend.Backend
	InstallRoot      string
	Log              *slog.Logger
	Adapter          hostsvc.Adapter
	SupervisorBinary string
}

// UpOptions mirrors the `create up` CLI flags.
type UpOptions struct {
	ManifestPath  string
	ProjectDir    string // defaults to the manifest's directory
	EnvFile       string // defaults to ".env" next to the manifest
	ForceRecreate bool
	NoRecreate    bool
	NoBuild       bool
	RemoveOrphans bool
	WantService   bool
}

// Up brings every service in the manifest up, topologically ordered by
// depends_on, building images where needed and wiring DNS between services.
func (o *Orchestrator) Up(ctx context.Context, opts UpOptions) error {
	if opts.ForceRecreate && opts.NoRecreate {
		return fmt.Errorf("compose: --force-recreate and --no-recreate are mutually exclusive")
	}

	manifest, err := LoadManifest(opts.ManifestPath)
	if err != nil {
		return err
	}

	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = filepath.Dir(opts.ManifestPath)
	}
	project := ProjectName(projectDir)

	layers, err := topoLayers(manifest)
	if err != nil {
		return err
	}

	if opts.RemoveOrphans {
		if err := o.removeOrphans(ctx, project, manifest); err != nil {
			o.Log.ErrorContext(ctx, "compose: remove orphans", "error", err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = filepath.Join(projectDir, ".env")
	}
	fileEnv, err := loadEnvFile(envFile)
	if err != nil {
		return err
	}

	var started []serviceContainer
	var errs error
	for _, layer := range layers {
		for _, name := range layer {
			sc, err := o.upOne(ctx, project, projectDir, name, manifest.Services[name], opts, fileEnv)
			if err != nil {
				o.Log.ErrorContext(ctx, "compose: service failed to start", "service", name, "error", err)
				errs = errors.Join(errs, fmt.Errorf("%s: %w", name, err))
				continue
			}
			if sc != nil {
				started = append(started, *sc)
			}
		}
	}

	if len(started) > 0 {
		dns := resolveAll(ctx, o.Backend, o.Log, started)
		injectDNS(ctx, o.Backend, o.Log, started, dns)
	}

	if err := o.maybeSpawnMonitor(ctx, project, opts.ManifestPath, manifest); err != nil {
		o.Log.ErrorContext(ctx, "compose: spawn auto-update monitor", "error", err)
	}

	return errs
}

// upOne brings one service up, returning nil (not an error) for the "left
// alone" and "build skipped" cases, which are informational, not failures.
func (o *Orchestrator) upOne(ctx context.Context, project, projectDir, name string, svc ServiceSpec, opts UpOptions, fileEnv []string) (*serviceContainer, error) {
	ctx, span := tracer.Start(ctx, "compose.upOne", trace.WithAttributes(attribute.String("service", name)))
	defer span.End()

	containerName := ContainerName(project, name)
	tag := svc.Image
	if tag == "" {
		tag = containerName
	}

	if svc.Build != "" && !opts.NoBuild {
		if err := o.buildService(ctx, projectDir, svc.Build, tag); err != nil {
			o.Log.ErrorContext(ctx, "compose: build failed, skipping service", "service", name, "error", err)
			return nil, nil
		}
	}
	if !build.Exists(o.InstallRoot, tag) {
		return nil, fmt.Errorf("image %q not found", tag)
	}

	existing, err := o.Store.FindByName(containerName)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		switch {
		case opts.ForceRecreate:
			if err := engine.Remove(ctx, o.Backend, o.Store, o.InstallRoot, existing); err != nil {
				return nil, fmt.Errorf("force-recreate: %w", err)
			}
			existing = nil
		case opts.NoRecreate:
			return &serviceContainer{service: name, rec: existing}, nil
		default:
			o.Log.InfoContext(ctx, "compose: service already exists, leaving as-is", "service", name, "id", existing.ID)
			return &serviceContainer{service: name, rec: existing}, nil
		}
	}

	ports, err := parsePorts(svc.Ports)
	if err != nil {
		return nil, err
	}
	volumes, err := parseVolumes(svc.Volumes)
	if err != nil {
		return nil, err
	}

	rec, err := engine.Create(ctx, o.Store, o.Backend, o.InstallRoot, engine.CreateSpec{
		Name:    containerName,
		Image:   tag,
		Ports:   ports,
		Volumes: volumes,
		Envs:    mergeEnv(svc.Environment, fileEnv),
		Restart: restartPolicy(svc.Restart),
		Labels:  svc.Labels,
		Network: svc.Network,
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Start(ctx, o.Store, o.InstallRoot, o.SupervisorBinary, rec, opts.WantService, o.Adapter, o.Log); err != nil {
		return nil, err
	}
	return &serviceContainer{service: name, rec: rec}, nil
}

func (o *Orchestrator) buildService(ctx context.Context, projectDir, buildContext, tag string) error {
	contextDir := buildContext
	if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(projectDir, contextDir)
	}
	instrPath, err := build.ResolveInstructionFile(contextDir)
	if err != nil {
		return err
	}
	f, err := os.Open(instrPath)
	if err != nil {
		return fmt.Errorf("compose: open instruction file: %w", err)
	}
	defer f.Close()
	instructions, err := build.ParseInstructions(f)
	if err != nil {
		return err
	}

	b, err := build.New(ctx, o.Backend, o.Log, o.InstallRoot, contextDir, tag)
	if err != nil {
		return err
	}
	return b.Run(instructions)
}

// removeOrphans deletes project containers whose service name no longer
// appears in the manifest. Failures across orphans are aggregated with go-multierror since
// this loop, unlike per-service up, has no meaningful per-item skip path.
func (o *Orchestrator) removeOrphans(ctx context.Context, project string, manifest *Manifest) error {
	recs, err := o.Store.ListByProjectPrefix(project + "_")
	if err != nil {
		return err
	}
	var result *multierror.Error
	for _, rec := range recs {
		service := strings.TrimPrefix(rec.Name, project+"_")
		if _, ok := manifest.Services[service]; ok {
			continue
		}
		if err := engine.Remove(ctx, o.Backend, o.Store, o.InstallRoot, rec); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", rec.Name, err))
		}
	}
	return result.ErrorOrNil()
}

func (o *Orchestrator) maybeSpawnMonitor(ctx context.Context, project, manifestPath string, manifest *Manifest) error {
	anyAutoUpdate := false
	for _, svc := range manifest.Services {
		if svc.AutoUpdate.Enabled {
			anyAutoUpdate = true
			break
		}
	}
	if !anyAutoUpdate {
		return nil
	}

	pidPath := MonitorPIDPath(o.InstallRoot, project)
	if _, err := os.Stat(pidPath); err == nil {
		o.Log.InfoContext(ctx, "compose: auto-update monitor already running", "project", project)
		return nil
	}

	cmd := exec.Command(o.SupervisorBinary, "monitor-daemon", manifestPath, project)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("compose: spawn monitor: %w", err)
	}
	return os.WriteFile(pidPath, []byte(fmt.Sprintf("%d", cmd.Process.Pid)), 0o644)
}

// DownOptions mirrors the `create down` CLI flags.
type DownOptions struct {
	ManifestPath  string
	ProjectDir    string
	RemoveOrphans bool
	RemoveImages  string // "none" | "local" | "all"
}

// Down tears down every service in the manifest, in reverse dependency
// order, optionally removing orphaned containers and built images.
func (o *Orchestrator) Down(ctx context.Context, opts DownOptions) error {
	manifest, err := LoadManifest(opts.ManifestPath)
	if err != nil {
		return err
	}
	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = filepath.Dir(opts.ManifestPath)
	}
	project := ProjectName(projectDir)

	if err := o.stopMonitor(project); err != nil {
		o.Log.ErrorContext(ctx, "compose: stop monitor", "error", err)
	}

	order := manifest.ServiceOrder
	if layers, lerr := topoLayers(manifest); lerr == nil {
		order = nil
		for i := len(layers) - 1; i >= 0; i-- {
			order = append(order, layers[i]...)
		}
	}

	var result *multierror.Error
	for _, name := range order {
		svc := manifest.Services[name]
		svcCtx, span := tracer.Start(ctx, "compose.downOne", trace.WithAttributes(attribute.String("service", name)))
		rec, err := o.Store.FindByName(ContainerName(project, name))
		if err != nil {
			span.End()
			if errors.Is(err, state.ErrNotFound) {
				continue
			}
			result = multierror.Append(result, err)
			continue
		}
		if err := engine.Remove(svcCtx, o.Backend, o.Store, o.InstallRoot, rec); err != nil {
			span.End()
			result = multierror.Append(result, fmt.Errorf("%s: %w", name, err))
			continue
		}
		span.End()
		if opts.RemoveImages == "local" && svc.Build != "" {
			build.RemoveArtifacts(o.InstallRoot, rec.Image)
		}
		if opts.RemoveImages == "all" {
			build.RemoveArtifacts(o.InstallRoot, rec.Image)
		}
	}

	if opts.RemoveOrphans {
		if err := o.removeOrphans(ctx, project, manifest); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// MonitorPIDPath is the well-known location of a project's auto-update
// monitor PID file.
func MonitorPIDPath(installRoot, project string) string {
	return filepath.Join(installRoot, "state", "monitor_"+project+".pid")
}

func (o *Orchestrator) stopMonitor(project string) error {
	path := MonitorPIDPath(o.InstallRoot, project)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return signalAndRemove(path, strings.TrimSpace(string(data)))
}

// signalAndRemove terminates the process recorded in a PID file and removes
// it, tolerating a process that has already exited on its own.
func signalAndRemove(pidPath, pidStr string) error {
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return fmt.Errorf("compose: malformed pid file %s: %w", pidPath, err)
	}
	proc, err := os.FindProcess(pid)
	if err == nil {
		if sigErr := proc.Signal(syscall.SIGTERM); sigErr != nil && !errors.Is(sigErr, os.ErrProcessDone) {
			return fmt.Errorf("compose: signal monitor pid %d: %w", pid, sigErr)
		}
	}
	return os.Remove(pidPath)
}
