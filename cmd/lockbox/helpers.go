package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nate-c/lockbox/internal/state"
)

func parsePortFlags(raw []string) ([]state.PortMapping, error) {
	out := make([]state.PortMapping, 0, len(raw))
	for _, p := range raw {
		host, ctr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("lockbox: malformed port mapping %q, want HOST:CONTAINER", p)
		}
		h, err := strconv.Atoi(host)
		if err != nil {
			return nil, fmt.Errorf("lockbox: malformed host port in %q: %w", p, err)
		}
		c, err := strconv.Atoi(ctr)
		if err != nil {
			return nil, fmt.Errorf("lockbox: malformed container port in %q: %w", p, err)
		}
		out = append(out, state.PortMapping{Host: h, Container: c})
	}
	return out, nil
}

func parseVolumeFlags(raw []string) ([]state.VolumeMapping, error) {
	out := make([]state.VolumeMapping, 0, len(raw))
	for _, v := range raw {
		host, ctr, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("lockbox: malformed volume mapping %q, want HOST:CONTAINER", v)
		}
		out = append(out, state.VolumeMapping{HostPath: host, ContainerPath: ctr})
	}
	return out, nil
}

func parseKVToMap(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("lockbox: malformed key=value pair %q", kv)
		}
		out[k] = v
	}
	return out, nil
}

func joinArgs(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	return strings.Join(quoted, " ")
}
