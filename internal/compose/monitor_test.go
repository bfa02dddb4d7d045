package compose

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestMonitorStoreFirstObservationPrimesOnly(t *testing.T) {
	installRoot := t.TempDir()
	store, err := OpenMonitorStore(installRoot)
	if err != nil {
		t.Fatalf("OpenMonitorStore: %v", err)
	}
	defer store.Close()

	triggered, err := store.Observe("demo", "web", "marker-1")
	if err != nil {
		t.Fatalf("Observe: %v", err)
	}
	if triggered {
		t.Fatal("first observation must not trigger")
	}
}

func TestMonitorStoreTriggersOnChange(t *testing.T) {
	installRoot := t.TempDir()
	store, err := OpenMonitorStore(installRoot)
	if err != nil {
		t.Fatalf("OpenMonitorStore: %v", err)
	}
	defer store.Close()

	if _, err := store.Observe("demo", "web", "marker-1"); err != nil {
		t.Fatalf("Observe 1: %v", err)
	}
	triggered, err := store.Observe("demo", "web", "marker-1")
	if err != nil {
		t.Fatalf("Observe 2: %v", err)
	}
	if triggered {
		t.Fatal("unchanged marker must not trigger")
	}

	triggered, err = store.Observe("demo", "web", "marker-2")
	if err != nil {
		t.Fatalf("Observe 3: %v", err)
	}
	if !triggered {
		t.Fatal("changed marker must trigger")
	}
}

func TestMonitorRemoteMarkerPrefersLastModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2026 07:28:00 GMT")
		w.Header().Set("ETag", `"abc123"`)
	}))
	defer srv.Close()

	m := &Monitor{Log: discardLogger(), client: srv.Client()}
	marker, err := m.remoteMarker(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("remoteMarker: %v", err)
	}
	if marker != "Wed, 21 Oct 2026 07:28:00 GMT" {
		t.Fatalf("marker = %q", marker)
	}
}

func TestMonitorRemoteMarkerFallsBackToETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"abc123"`)
	}))
	defer srv.Close()

	m := &Monitor{Log: discardLogger(), client: srv.Client()}
	marker, err := m.remoteMarker(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("remoteMarker: %v", err)
	}
	if marker != `"abc123"` {
		t.Fatalf("marker = %q", marker)
	}
}

func TestMonitorLocalMarkerHashesInstructionFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lbox"), []byte("BOX_BASE alpine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := &Monitor{ProjectDir: filepath.Dir(dir), Log: discardLogger()}
	marker1, err := m.localMarker(ServiceSpec{Build: dir})
	if err != nil {
		t.Fatalf("localMarker: %v", err)
	}
	if marker1 == "" {
		t.Fatal("expected non-empty marker")
	}

	if err := os.WriteFile(filepath.Join(dir, "lbox"), []byte("BOX_BASE alpine\nBOX_EXEC echo hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	marker2, err := m.localMarker(ServiceSpec{Build: dir})
	if err != nil {
		t.Fatalf("localMarker (changed): %v", err)
	}
	if marker1 == marker2 {
		t.Fatal("expected marker to change with instruction file content")
	}
}
