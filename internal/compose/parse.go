package compose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nate-c/lockbox/internal/state"
)

func parsePorts(raw []string) ([]state.PortMapping, error) {
	out := make([]state.PortMapping, 0, len(raw))
	for _, p := range raw {
		host, ctr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("compose: malformed port mapping %q", p)
		}
		h, err := strconv.Atoi(host)
		if err != nil {
			return nil, fmt.Errorf("compose: malformed host port in %q: %w", p, err)
		}
		c, err := strconv.Atoi(ctr)
		if err != nil {
			return nil, fmt.Errorf("compose: malformed container port in %q: %w", p, err)
		}
		out = append(out, state.PortMapping{Host: h, Container: c})
	}
	return out, nil
}

func parseVolumes(raw []string) ([]state.VolumeMapping, error) {
	out := make([]state.VolumeMapping, 0, len(raw))
	for _, v := range raw {
		host, ctr, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("compose: malformed volume mapping %q", v)
		}
		out = append(out, state.VolumeMapping{HostPath: host, ContainerPath: ctr})
	}
	return out, nil
}

func restartPolicy(raw string) state.RestartPolicy {
	if raw == "" {
		return state.RestartNo
	}
	return state.RestartPolicy(raw)
}
