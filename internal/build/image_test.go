package build

import (
	"os"
	"testing"
)

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cmd := "/app/start.sh"
	m := &Metadata{EntrypointCommand: &cmd, WorkingDirectory: "/app"}

	if err := writeMetadata(dir, "demo", m); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}

	got, err := LoadMetadata(dir, "demo")
	if err != nil {
		t.Fatalf("LoadMetadata: %v", err)
	}
	if got.WorkingDirectory != "/app" || got.EntrypointCommand == nil || *got.EntrypointCommand != cmd {
		t.Fatalf("got %+v", got)
	}
}

func TestRemoveArtifactsReportsWhetherAnythingRemoved(t *testing.T) {
	dir := t.TempDir()
	if RemoveArtifacts(dir, "missing") {
		t.Fatal("expected false for a tag with no artifacts")
	}

	m := &Metadata{WorkingDirectory: "/"}
	if err := writeMetadata(dir, "demo", m); err != nil {
		t.Fatalf("writeMetadata: %v", err)
	}
	if !RemoveArtifacts(dir, "demo") {
		t.Fatal("expected true after removing an existing sidecar")
	}
}

func TestListReturnsEmptyWhenImagesDirMissing(t *testing.T) {
	infos, err := List(t.TempDir())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("got %d infos, want 0", len(infos))
	}
}

func TestListEnumeratesBuiltTags(t *testing.T) {
	dir := t.TempDir()
	p := Paths(dir, "demo")
	if err := os.MkdirAll(dir+"/images", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p.Tar, []byte("tarball-bytes"), 0o644); err != nil {
		t.Fatalf("write tar: %v", err)
	}
	if err := os.WriteFile(p.Metadata, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	infos, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("got %d infos, want 1", len(infos))
	}
	if infos[0].Tag != "demo" {
		t.Errorf("got tag %q, want demo", infos[0].Tag)
	}
	if infos[0].Size != int64(len("tarball-bytes")) {
		t.Errorf("got size %d, want %d", infos[0].Size, len("tarball-bytes"))
	}
}
