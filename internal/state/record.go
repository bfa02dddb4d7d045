// Package state implements the flat-file container record store.
package state

import "time"

// Status is the lifecycle phase of a container record.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusRunning    Status = "running"
	StatusRestarting Status = "restarting"
	StatusExited     Status = "exited"
	StatusError      Status = "error"
)

// RestartPolicy controls what the supervisor does when the entrypoint exits.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// PortMapping is one host:container TCP forward.
type PortMapping struct {
	Host      int `json:"host"`
	Container int `json:"container"`
}

// VolumeMapping is one host:container bind mount.
type VolumeMapping struct {
	HostPath      string `json:"host_path"`
	ContainerPath string `json:"container_path"`
}

// Record is the persisted state of one container.
type Record struct {
	ID             string            `json:"id"`
	Name           string            `json:"name,omitempty"`
	Image          string            `json:"image"`
	Status         Status            `json:"status"`
	Ports          []PortMapping     `json:"ports"`
	Volumes        []VolumeMapping   `json:"volumes"`
	Envs           []string          `json:"envs"`
	Command        string            `json:"command"`
	Workdir        string            `json:"workdir"`
	Created        time.Time         `json:"created"`
	Root           string            `json:"root"`
	Restart        RestartPolicy     `json:"restart"`
	RestartCount   int               `json:"restart_count"`
	Labels         map[string]string `json:"labels,omitempty"`
	Network        string            `json:"network"`
	ServiceEnabled bool              `json:"service_enabled"`
	ServiceName    string            `json:"service_name,omitempty"`
	ServiceMode    string            `json:"service_mode,omitempty"`
	Mounts         []string          `json:"mounts,omitempty"`
}

// Clone returns a deep-enough copy safe to mutate without aliasing slices/maps.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Ports = append([]PortMapping(nil), r.Ports...)
	c.Volumes = append([]VolumeMapping(nil), r.Volumes...)
	c.Envs = append([]string(nil), r.Envs...)
	c.Mounts = append([]string(nil), r.Mounts...)
	if r.Labels != nil {
		c.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			c.Labels[k] = v
		}
	}
	return &c
}
