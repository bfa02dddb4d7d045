package compose

import (
	"fmt"
	"sort"
	"strings"
)

// topoLayers groups the manifest's services into dependency ranks: every
// service in a layer depends only on services in prior layers. Within a
// layer, services are ordered per ServiceOrder.
func topoLayers(m *Manifest) ([][]string, error) {
	indexOf := make(map[string]int, len(m.ServiceOrder))
	for i, name := range m.ServiceOrder {
		indexOf[name] = i
	}

	indegree := make(map[string]int, len(m.ServiceOrder))
	dependents := make(map[string][]string)
	for _, name := range m.ServiceOrder {
		indegree[name] = 0
	}
	for _, name := range m.ServiceOrder {
		for _, dep := range m.Services[name].DependsOn {
			if _, ok := m.Services[dep]; !ok {
				return nil, fmt.Errorf("compose: service %q depends on unknown service %q", name, dep)
			}
			dependents[dep] = append(dependents[dep], name)
			indegree[name]++
		}
	}

	remaining := len(m.ServiceOrder)
	var layers [][]string
	for remaining > 0 {
		var layer []string
		for _, name := range m.ServiceOrder {
			if indegree[name] == 0 {
				layer = append(layer, name)
			}
		}
		if len(layer) == 0 {
			var cyclic []string
			for name, deg := range indegree {
				if deg > 0 {
					cyclic = append(cyclic, name)
				}
			}
			sort.Strings(cyclic)
			return nil, fmt.Errorf("compose: cyclic depends_on among %s", strings.Join(cyclic, ", "))
		}

		layers = append(layers, layer)
		for _, name := range layer {
			indegree[name] = -1 // consumed, never matches the ==0 check again
			remaining--
		}
		for _, name := range layer {
			for _, dep := range dependents[name] {
				if indegree[dep] > 0 {
					indegree[dep]--
				}
			}
		}
	}
	return layers, nil
}
