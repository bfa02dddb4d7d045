// Package compose implements the project orchestrator
// and the auto-update monitor it optionally spawns.
package compose

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AutoUpdateSpec is a service's drift-detection configuration.
type AutoUpdateSpec struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url,omitempty"`
}

// DependsOn accepts either manifest shape: a plain list of names, or a
// mapping keyed by name (condition values are ignored, only the key set
// matters for ordering).
type DependsOn []string

func (d *DependsOn) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		*d = names
		return nil
	case yaml.MappingNode:
		names := make([]string, 0, len(value.Content)/2)
		for i := 0; i < len(value.Content); i += 2 {
			names = append(names, value.Content[i].Value)
		}
		*d = names
		return nil
	default:
		return fmt.Errorf("compose: depends_on must be a list or mapping")
	}
}

// ServiceSpec is one service descriptor from the manifest.
type ServiceSpec struct {
	Image       string            `yaml:"image,omitempty"`
	Build       string            `yaml:"build,omitempty"`
	Ports       []string          `yaml:"ports,omitempty"`
	Volumes     []string          `yaml:"volumes,omitempty"`
	Environment []string          `yaml:"environment,omitempty"`
	Restart     string            `yaml:"restart,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Network     string            `yaml:"network,omitempty"`
	DependsOn   DependsOn         `yaml:"depends_on,omitempty"`
	AutoUpdate  AutoUpdateSpec    `yaml:"auto-update,omitempty"`
}

// Manifest is the parsed project file. ServiceOrder preserves the
// manifest's own key order, needed so same-rank services start in manifest
// order.
type Manifest struct {
	Services     map[string]ServiceSpec
	ServiceOrder []string
}

func (m *Manifest) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Services yaml.Node `yaml:"services"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Services.Kind != yaml.MappingNode {
		return fmt.Errorf("compose: services must be a mapping")
	}
	m.Services = make(map[string]ServiceSpec, len(raw.Services.Content)/2)
	for i := 0; i < len(raw.Services.Content); i += 2 {
		keyNode, valNode := raw.Services.Content[i], raw.Services.Content[i+1]
		var svc ServiceSpec
		if err := valNode.Decode(&svc); err != nil {
			return fmt.Errorf("compose: service %q: %w", keyNode.Value, err)
		}
		m.Services[keyNode.Value] = svc
		m.ServiceOrder = append(m.ServiceOrder, keyNode.Value)
	}
	return nil
}

// LoadManifest reads and parses a compose manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compose: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("compose: parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// ProjectName derives the compose project name from a directory path:
// lowercased, spaces stripped.
func ProjectName(dir string) string {
	base := dir
	if i := strings.LastIndexAny(dir, `/\`); i >= 0 {
		base = dir[i+1:]
	}
	base = strings.ToLower(base)
	return strings.ReplaceAll(base, " ", "")
}

// ContainerName is the derived name of a service's container within a project.
func ContainerName(project, service string) string {
	return project + "_" + service
}
