package build

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseInstructionsSkipsBlankAndComment(t *testing.T) {
	src := `
# base image
BOX_BASE alpine:latest

BOX_COPY . /app
BOX_EXEC make build
`
	instr, err := ParseInstructions(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseInstructions: %v", err)
	}
	want := []Instruction{
		{Directive: "BOX_BASE", Args: "alpine:latest", Line: 3},
		{Directive: "BOX_COPY", Args: ". /app", Line: 5},
		{Directive: "BOX_EXEC", Args: "make build", Line: 6},
	}
	if len(instr) != len(want) {
		t.Fatalf("got %d instructions, want %d: %+v", len(instr), len(want), instr)
	}
	for i, w := range want {
		if instr[i] != w {
			t.Errorf("instr[%d] = %+v, want %+v", i, instr[i], w)
		}
	}
}

func TestParseInstructionsRejectsMissingArgs(t *testing.T) {
	_, err := ParseInstructions(strings.NewReader("BOX_BASE\n"))
	if err == nil {
		t.Fatal("expected error for directive with no arguments")
	}
}

func TestResolveInstructionFilePrefersAppLbox(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "lbox"), []byte("BOX_BASE alpine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.lbox"), []byte("BOX_BASE alpine\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := ResolveInstructionFile(dir)
	if err != nil {
		t.Fatalf("ResolveInstructionFile: %v", err)
	}
	if filepath.Base(got) != "app.lbox" {
		t.Errorf("got %q, want app.lbox to win when both exist", got)
	}
}

func TestResolveInstructionFileErrorsWhenNeitherExists(t *testing.T) {
	dir := t.TempDir()
	if _, err := ResolveInstructionFile(dir); err == nil {
		t.Fatal("expected an error when neither app.lbox nor lbox exists")
	}
}
