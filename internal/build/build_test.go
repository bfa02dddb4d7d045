package build

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nate-c/lockbox/internal/backend"
)

// fakeBackend is a minimal backend.Backend double: Import just creates the
// scratch directory, Exec runs nothing and hands the shell command to
// execFunc when a test sets one (exit 0 otherwise), and Destroy removes
// whatever Import created.
type fakeBackend struct {
	mu    sync.Mutex
	roots map[string]string

	execFunc func(shellCmd string) (int, error)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{roots: map[string]string{}}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Import(ctx context.Context, id, rootDir, imagePath string) error {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return err
	}
	f.mu.Lock()
	f.roots[id] = rootDir
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) Exec(ctx context.Context, id, shellCmd string, opts backend.ExecOpts) (int, error) {
	if f.execFunc != nil {
		return f.execFunc(shellCmd)
	}
	return 0, nil
}

func (f *fakeBackend) Terminate(ctx context.Context, id string) error { return nil }

func (f *fakeBackend) Destroy(ctx context.Context, id string) error {
	f.mu.Lock()
	rootDir, ok := f.roots[id]
	delete(f.roots, id)
	f.mu.Unlock()
	if !ok {
		return nil
	}
	return os.RemoveAll(rootDir)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeBaseImage(t *testing.T, installRoot, tag string) {
	t.Helper()
	p := Paths(installRoot, tag)
	if err := os.MkdirAll(filepath.Dir(p.Tar), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p.Tar, []byte("fake tar contents"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBuildRunSuccessWritesTarAndMetadata(t *testing.T) {
	installRoot := t.TempDir()
	contextDir := t.TempDir()
	writeBaseImage(t, installRoot, "base")

	if err := os.WriteFile(filepath.Join(contextDir, "app.py"), []byte("print(1)\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	be := newFakeBackend()
	b, err := New(context.Background(), be, discardLogger(), installRoot, contextDir, "myapp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	src := `
BOX_BASE base
BOX_DIR /app
BOX_COPY app.py /app
BOX_ENV PORT=8080
BOX_EXEC echo hello
BOX_START ["python3", "app.py"]
`
	instr, err := ParseInstructions(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}

	if err := b.Run(instr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !Exists(installRoot, "myapp") {
		t.Fatal("expected image tar to exist after a successful build")
	}
	meta, err := LoadMetadata(installRoot, "myapp")
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if meta.WorkingDirectory != "/app" {
		t.Errorf("WorkingDirectory = %q, want /app", meta.WorkingDirectory)
	}
	if meta.EntrypointCommand == nil || *meta.EntrypointCommand != "python3 app.py" {
		t.Errorf("EntrypointCommand = %v, want \"python3 app.py\"", meta.EntrypointCommand)
	}

	be.mu.Lock()
	remaining := len(be.roots)
	be.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected scratch root to be destroyed after export, %d still tracked", remaining)
	}
}

func TestBuildRunAbortsOnNonzeroExecAndLeavesNoArtifacts(t *testing.T) {
	installRoot := t.TempDir()
	contextDir := t.TempDir()
	writeBaseImage(t, installRoot, "base")

	be := newFakeBackend()
	be.execFunc = func(shellCmd string) (int, error) {
		return 1, nil
	}

	b, err := New(context.Background(), be, discardLogger(), installRoot, contextDir, "broken")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	instr, err := ParseInstructions(strings.NewReader("BOX_BASE base\nBOX_EXEC false\n"))
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}

	if err := b.Run(instr); err == nil {
		t.Fatal("expected Run to fail when EXEC exits nonzero")
	}

	if Exists(installRoot, "broken") {
		t.Fatal("expected no image tar after a failed build")
	}
	if _, err := LoadMetadata(installRoot, "broken"); err == nil {
		t.Fatal("expected no metadata sidecar after a failed build")
	}

	be.mu.Lock()
	remaining := len(be.roots)
	be.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected scratch root to be cleaned up after failure, %d still tracked", remaining)
	}
}

func TestBuildImportBaseFailsOnUnknownTag(t *testing.T) {
	installRoot := t.TempDir()
	contextDir := t.TempDir()

	be := newFakeBackend()
	b, err := New(context.Background(), be, discardLogger(), installRoot, contextDir, "myapp")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// An uppercase reference is invalid OCI reference syntax, so crane
	// rejects it during local parsing rather than dialing a registry.
	instr, err := ParseInstructions(strings.NewReader("BOX_BASE Not-A-Valid-Ref\n"))
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}
	err = b.Run(instr)
	if err == nil {
		t.Fatal("expected Run to fail for an unresolvable base image")
	}
	if !strings.Contains(err.Error(), "Not-A-Valid-Ref") {
		t.Errorf("error %q does not mention the unresolved tag", err)
	}
}
