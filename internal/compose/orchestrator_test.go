package compose

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nate-c/lockbox/internal/backend"
	"github.com/nate-c/lockbox/internal/build"
	"github.com/nate-c/lockbox/internal/state"
)

type fakeBackend struct {
	imported  map[string]string
	destroyed []string
}

func newFakeBackend() *fakeBackend { return &fakeBackend{imported: map[string]string{}} }

func (f *fakeBackend) Name() string { return "fake" }
func (f *fakeBackend) Import(ctx context.Context, id, rootDir, imagePath string) error {
	f.imported[id] = rootDir
	return os.MkdirAll(rootDir, 0o755)
}
func (f *fakeBackend) Exec(ctx context.Context, id, shellCmd string, opts backend.ExecOpts) (int, error) {
	return 0, nil
}
func (f *fakeBackend) Terminate(ctx context.Context, id string) error { return nil }
func (f *fakeBackend) Destroy(ctx context.Context, id string) error {
	f.destroyed = append(f.destroyed, id)
	delete(f.imported, id)
	return nil
}

type fakeAdapter struct{}

func (a *fakeAdapter) Register(ctx context.Context, id, supervisorBinary string) (string, error) {
	return "lockbox-" + id, nil
}
func (a *fakeAdapter) Deregister(ctx context.Context, id, name string) error { return nil }
func (a *fakeAdapter) Start(ctx context.Context, name string) error         { return nil }
func (a *fakeAdapter) Stop(ctx context.Context, name string) error          { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeImage(t *testing.T, installRoot, tag string) {
	t.Helper()
	paths := build.Paths(installRoot, tag)
	if err := os.MkdirAll(filepath.Dir(paths.Tar), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Tar, []byte("fake tar"), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := "python app.py"
	meta := build.Metadata{EntrypointCommand: &cmd, WorkingDirectory: "/app"}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Metadata, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeBackend) {
	t.Helper()
	installRoot := t.TempDir()
	store, err := state.NewStore(filepath.Join(installRoot, "state"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	be := newFakeBackend()
	return &Orchestrator{
		Store:            store,
		Backend:          be,
		InstallRoot:      installRoot,
		Log:              discardLogger(),
		Adapter:          &fakeAdapter{},
		SupervisorBinary: "/bin/true",
	}, be
}

func TestUpCreatesServicesInDependencyOrder(t *testing.T) {
	o, be := newTestOrchestrator(t)
	writeImage(t, o.InstallRoot, "demo_web")
	writeImage(t, o.InstallRoot, "demo_cache")

	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, `
services:
  web:
    image: demo_web
    ports: ["8080:80"]
    depends_on: [cache]
  cache:
    image: demo_cache
`)

	err := o.Up(context.Background(), UpOptions{ManifestPath: manifestPath})
	if err != nil {
		t.Fatalf("Up: %v", err)
	}

	web, err := o.Store.FindByName("demo_web")
	if err != nil {
		t.Fatalf("FindByName web: %v", err)
	}
	cache, err := o.Store.FindByName("demo_cache")
	if err != nil {
		t.Fatalf("FindByName cache: %v", err)
	}
	if len(be.imported) != 2 {
		t.Fatalf("expected 2 imported containers, got %d", len(be.imported))
	}
	if web.ServiceMode == "" || cache.ServiceMode == "" {
		t.Fatalf("expected both services started: web=%+v cache=%+v", web, cache)
	}
}

func TestUpNoRecreateLeavesExistingContainer(t *testing.T) {
	o, be := newTestOrchestrator(t)
	writeImage(t, o.InstallRoot, "demo_web")
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, "services:\n  web:\n    image: demo_web\n")

	ctx := context.Background()
	if err := o.Up(ctx, UpOptions{ManifestPath: manifestPath}); err != nil {
		t.Fatalf("first Up: %v", err)
	}
	firstCount := len(be.imported)

	if err := o.Up(ctx, UpOptions{ManifestPath: manifestPath, NoRecreate: true}); err != nil {
		t.Fatalf("second Up: %v", err)
	}
	if len(be.imported) != firstCount {
		t.Fatalf("expected no new container, imported count changed: %d -> %d", firstCount, len(be.imported))
	}
}

func TestUpForceRecreateReplacesContainer(t *testing.T) {
	o, be := newTestOrchestrator(t)
	writeImage(t, o.InstallRoot, "demo_web")
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, "services:\n  web:\n    image: demo_web\n")

	ctx := context.Background()
	if err := o.Up(ctx, UpOptions{ManifestPath: manifestPath}); err != nil {
		t.Fatalf("first Up: %v", err)
	}
	first, err := o.Store.FindByName("demo_web")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}

	if err := o.Up(ctx, UpOptions{ManifestPath: manifestPath, ForceRecreate: true}); err != nil {
		t.Fatalf("second Up: %v", err)
	}
	second, err := o.Store.FindByName("demo_web")
	if err != nil {
		t.Fatalf("FindByName after recreate: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new container ID after force-recreate")
	}
	if len(be.destroyed) != 1 || be.destroyed[0] != first.ID {
		t.Fatalf("expected original container destroyed, got %v", be.destroyed)
	}
}

func TestDownRemovesAllServices(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	writeImage(t, o.InstallRoot, "demo_web")
	dir := t.TempDir()
	manifestPath := writeManifest(t, dir, "services:\n  web:\n    image: demo_web\n")

	ctx := context.Background()
	if err := o.Up(ctx, UpOptions{ManifestPath: manifestPath}); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := o.Down(ctx, DownOptions{ManifestPath: manifestPath}); err != nil {
		t.Fatalf("Down: %v", err)
	}
	if _, err := o.Store.FindByName("demo_web"); err == nil {
		t.Fatal("expected record removed after Down")
	}
}
