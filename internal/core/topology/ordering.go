package topology

import (
	"errors"
	"fmt"

	"github.com/dockerbay/dockerbay/internal/core/template"
)

var (
	ErrUnknownDependency = errors.New("depends on unknown service")
	ErrDependencyCycle   = errors.New("circular dependency detected")
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// TopologicalSort orders templates so every template follows the ones it
// depends on, using Kahn's algorithm. Among templates that are ready at the
// same time the input order is kept, so templates without dependencies come
// out exactly as given.
//
// Example:
//
//	// Templates: web → api → db
//	sorted, err := TopologicalSort([]template.ServiceTemplate{web, api, db})
//	// Result: [db, api, web]
func TopologicalSort(templates []template.ServiceTemplate) ([]template.ServiceTemplate, error) {
	if len(templates) == 0 {
		return templates, nil
	}

	index := make(map[string]int, len(templates))
	for i, t := range templates {
		index[t.Alias()] = i
	}

	// Build dependency graph
	inDegree := make([]int, len(templates))
	dependents := make([][]int, len(templates))
	for i, t := range templates {
		for _, dep := range t.DependsOn() {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("service %q: %w %q", t.Alias(), ErrUnknownDependency, dep)
			}
			inDegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var queue []int
	for i, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, i)
		}
	}

	result := make([]template.ServiceTemplate, 0, len(templates))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		result = append(result, templates[i])

		for _, d := range dependents[i] {
			inDegree[d]--
			if inDegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}

	if len(result) < len(templates) {
		var stuck []string
		for i, degree := range inDegree {
			if degree > 0 {
				stuck = append(stuck, templates[i].Alias())
			}
		}
		return nil, fmt.Errorf("%w among %v", ErrDependencyCycle, stuck)
	}

	return result, nil
}
