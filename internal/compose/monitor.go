package compose

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/build"
	"github.com/nate-c/lockbox/internal/engine"
	"github.com/nate-c/lockbox/internal/hostsvc"
	"github.com/nate-c/lockbox/internal/state"
)

// pollInterval is how often the monitor re-reads the manifest and checks
// every auto-update-enabled service for drift.
const pollInterval = 10 * time.Second

// Monitor is the detached daemon started by maybeSpawnMonitor. It owns one
// manifest/project for its lifetime; a manifest edit that adds or removes
// auto-update services is picked up on the next poll without a restart.
type Monitor struct {
	ManifestPath     string
	ProjectDir       string
	Project          string
	InstallRoot      string
	Store            *state.Store
	Backend          backend.Backend
	Adapter          hostsvc.Adapter
	SupervisorBinary string
	Log              *slog.Logger

	drift  *MonitorStore
	client *http.Client
}

// Run blocks, polling until ctx is cancelled. Every per-service error is
// logged and swallowed: one misbehaving service must never stop the monitor
// from watching the rest of the project.
func (m *Monitor) Run(ctx context.Context) error {
	drift, err := OpenMonitorStore(m.InstallRoot)
	if err != nil {
		return err
	}
	m.drift = drift
	defer m.drift.Close()
	m.client = &http.Client{Timeout: 10 * time.Second}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	manifest, err := LoadManifest(m.ManifestPath)
	if err != nil {
		m.Log.ErrorContext(ctx, "monitor: reload manifest failed", "error", err)
		return
	}
	for name, svc := range manifest.Services {
		if !svc.AutoUpdate.Enabled {
			continue
		}
		if err := m.checkService(ctx, name, svc); err != nil {
			m.Log.ErrorContext(ctx, "monitor: drift check failed", "service", name, "error", err)
		}
	}
}

// checkService computes the current drift marker for one service (a remote
// Last-Modified/ETag, or a local instruction file's content hash), records
// it, and triggers a rebuild-and-recreate if it changed from the last
// observation. The first-ever observation always primes rather than
// triggers, so rolling out auto-update on an existing fleet doesn't
// immediately rebuild every service.
func (m *Monitor) checkService(ctx context.Context, name string, svc ServiceSpec) error {
	marker, err := m.driftMarker(ctx, svc)
	if err != nil {
		return err
	}
	if marker == "" {
		return nil
	}

	triggered, err := m.drift.Observe(m.Project, name, marker)
	if err != nil {
		return fmt.Errorf("record drift marker: %w", err)
	}
	if !triggered {
		return nil
	}

	m.Log.InfoContext(ctx, "monitor: drift detected, updating service", "service", name, "marker", marker)
	return m.updateService(ctx, name, svc)
}

func (m *Monitor) driftMarker(ctx context.Context, svc ServiceSpec) (string, error) {
	if svc.AutoUpdate.URL != "" {
		return m.remoteMarker(ctx, svc.AutoUpdate.URL)
	}
	return m.localMarker(svc)
}

// remoteMarker HEAD-fetches the configured URL and uses Last-Modified,
// falling back to ETag, as the drift signal.
func (m *Monitor) remoteMarker(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("build HEAD request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HEAD %s: %w", url, err)
	}
	defer resp.Body.Close()

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		return lm, nil
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag, nil
	}
	return "", fmt.Errorf("HEAD %s: no Last-Modified or ETag header", url)
}

// localMarker hashes the service's build instruction file; a source-level
// edit to a local build context is the drift signal when no URL is set.
func (m *Monitor) localMarker(svc ServiceSpec) (string, error) {
	if svc.Build == "" {
		return "", nil
	}
	contextDir := svc.Build
	if !filepath.IsAbs(contextDir) {
		contextDir = filepath.Join(m.ProjectDir, contextDir)
	}
	instrPath, err := build.ResolveInstructionFile(contextDir)
	if err != nil {
		return "", err
	}
	f, err := os.Open(instrPath)
	if err != nil {
		return "", fmt.Errorf("open instruction file: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash instruction file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// updateService refreshes the image (remote download or local rebuild) then
// recreates the container in place, preserving its port/volume/env
// descriptor from the manifest.
func (m *Monitor) updateService(ctx context.Context, name string, svc ServiceSpec) error {
	containerName := ContainerName(m.Project, name)
	tag := svc.Image
	if tag == "" {
		tag = containerName
	}

	if svc.AutoUpdate.URL != "" {
		if err := m.downloadImage(ctx, svc.AutoUpdate.URL, tag); err != nil {
			return fmt.Errorf("download updated image: %w", err)
		}
	} else if svc.Build != "" {
		contextDir := svc.Build
		if !filepath.IsAbs(contextDir) {
			contextDir = filepath.Join(m.ProjectDir, contextDir)
		}
		instrPath, err := build.ResolveInstructionFile(contextDir)
		if err != nil {
			return err
		}
		f, err := os.Open(instrPath)
		if err != nil {
			return fmt.Errorf("open instruction file: %w", err)
		}
		instructions, err := build.ParseInstructions(f)
		f.Close()
		if err != nil {
			return err
		}
		b, err := build.New(ctx, m.Backend, m.Log, m.InstallRoot, contextDir, tag)
		if err != nil {
			return err
		}
		if err := b.Run(instructions); err != nil {
			return fmt.Errorf("rebuild image: %w", err)
		}
	}

	existing, err := m.Store.FindByName(containerName)
	if err != nil {
		if err == state.ErrNotFound {
			m.Log.WarnContext(ctx, "monitor: service has no running container, skipping recreate", "service", name)
			return nil
		}
		return err
	}

	wantService := existing.ServiceEnabled
	if err := engine.Remove(ctx, m.Backend, m.Store, m.InstallRoot, existing); err != nil {
		return fmt.Errorf("remove stale container: %w", err)
	}

	ports, err := parsePorts(svc.Ports)
	if err != nil {
		return err
	}
	volumes, err := parseVolumes(svc.Volumes)
	if err != nil {
		return err
	}

	rec, err := engine.Create(ctx, m.Store, m.Backend, m.InstallRoot, engine.CreateSpec{
		Name:    containerName,
		Image:   tag,
		Ports:   ports,
		Volumes: volumes,
		Envs:    svc.Environment,
		Restart: restartPolicy(svc.Restart),
		Labels:  svc.Labels,
		Network: svc.Network,
	})
	if err != nil {
		return fmt.Errorf("recreate container: %w", err)
	}
	return engine.Start(ctx, m.Store, m.InstallRoot, m.SupervisorBinary, rec, wantService, m.Adapter, m.Log)
}

// downloadImage replaces an image's tarball in place with the bytes fetched
// from url, reusing the image layout build.Paths already defines.
func (m *Monitor) downloadImage(ctx context.Context, url, tag string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	paths := build.Paths(m.InstallRoot, tag)
	if err := os.MkdirAll(filepath.Dir(paths.Tar), 0o755); err != nil {
		return err
	}
	tmp := paths.Tar + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, paths.Tar)
}
