package compose

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "lockbox-compose.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadManifestPreservesServiceOrder(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
services:
  web:
    image: demo/web
    ports: ["8080:80"]
    depends_on: [cache, api]
  api:
    image: demo/api
    depends_on:
      cache:
        condition: service_started
  cache:
    image: demo/cache
`)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	want := []string{"web", "api", "cache"}
	if !reflect.DeepEqual(m.ServiceOrder, want) {
		t.Fatalf("ServiceOrder = %v, want %v", m.ServiceOrder, want)
	}
	if !reflect.DeepEqual([]string(m.Services["web"].DependsOn), []string{"cache", "api"}) {
		t.Fatalf("web depends_on = %v", m.Services["web"].DependsOn)
	}
	if !reflect.DeepEqual([]string(m.Services["api"].DependsOn), []string{"cache"}) {
		t.Fatalf("api depends_on (mapping form) = %v", m.Services["api"].DependsOn)
	}
}

func TestLoadManifestRejectsNonMappingServices(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "services: [not, a, mapping]\n")
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for non-mapping services block")
	}
}

func TestProjectName(t *testing.T) {
	cases := map[string]string{
		"/home/user/My Project": "myproject",
		"/srv/demo":             "demo",
		"relative/path/App":     "app",
	}
	for in, want := range cases {
		if got := ProjectName(in); got != want {
			t.Errorf("ProjectName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestContainerName(t *testing.T) {
	if got := ContainerName("demo", "web"); got != "demo_web" {
		t.Errorf("ContainerName = %q", got)
	}
}
