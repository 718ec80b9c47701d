package engine

import (
	"fmt"

	"github.com/geoflow/pipeline/internal/config"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

// BuildDAG constructs the execution graph from the workflow's steps,
// validating that every DependsOn entry resolves to a known step and
// that the resulting graph is acyclic.
func BuildDAG(steps []config.StepConfig) (*Graph, error) {
	graph := NewGraph()
	stepMap := make(map[string]*config.StepConfig, len(steps))

	for i := range steps {
		step := &steps[i]
		if _, err := graph.AddNode(step); err != nil {
			return nil, err
		}
		stepMap[step.ID] = step
	}

	for _, step := range steps {
		for _, dependency := range step.DependsOn {
			if _, ok := stepMap[dependency]; !ok {
				return nil, pkgerrors.NewConfigurationError("steps", fmt.Sprintf("step %q depends on unknown step %q", step.ID, dependency), nil)
			}
			if err := graph.AddEdge(dependency, step.ID); err != nil {
				return nil, err
			}
		}
	}

	if err := graph.TopologicalSort(); err != nil {
		return nil, err
	}

	return graph, nil
}
