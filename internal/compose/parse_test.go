package compose

import (
	"testing"

	"github.com/nate-c/lockbox/internal/state"
)

func TestParsePorts(t *testing.T) {
	got, err := parsePorts([]string{"8080:80", "2222:22"})
	if err != nil {
		t.Fatalf("parsePorts: %v", err)
	}
	if len(got) != 2 || got[0].Host != 8080 || got[0].Container != 80 {
		t.Fatalf("got %+v", got)
	}
}

func TestParsePortsRejectsMalformed(t *testing.T) {
	if _, err := parsePorts([]string{"not-a-port"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := parsePorts([]string{"abc:80"}); err == nil {
		t.Fatal("expected error for non-numeric host port")
	}
}

func TestParseVolumes(t *testing.T) {
	got, err := parseVolumes([]string{"/host/data:/data"})
	if err != nil {
		t.Fatalf("parseVolumes: %v", err)
	}
	if len(got) != 1 || got[0].HostPath != "/host/data" || got[0].ContainerPath != "/data" {
		t.Fatalf("got %+v", got)
	}
}

func TestRestartPolicyDefaultsToNo(t *testing.T) {
	if got := restartPolicy(""); got != state.RestartNo {
		t.Fatalf("restartPolicy(\"\") = %v", got)
	}
	if got := restartPolicy("always"); got != state.RestartAlways {
		t.Fatalf("restartPolicy(\"always\") = %v", got)
	}
}
