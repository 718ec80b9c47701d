// Package engine builds the execution graph for a workflow and runs the
// streaming pipeline over it.
package engine

import (
	"fmt"
	"sort"

	"github.com/geoflow/pipeline/internal/config"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

// Node represents a vertex in the execution DAG.
type Node struct {
	ID         string
	Step       *config.StepConfig
	DependsOn  []*Node
	Dependents []*Node
}

// Graph encapsulates the DAG structure and topological levels.
type Graph struct {
	Nodes  map[string]*Node
	Levels [][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*Node)}
}

// AddNode inserts a step as a vertex in the graph.
func (g *Graph) AddNode(step *config.StepConfig) (*Node, error) {
	if step == nil {
		return nil, pkgerrors.NewConfigurationError("steps", "step cannot be nil", nil)
	}

	if g.Nodes == nil {
		g.Nodes = make(map[string]*Node)
	}

	if _, exists := g.Nodes[step.ID]; exists {
		return nil, pkgerrors.NewConfigurationError("steps", fmt.Sprintf("duplicate step id %q", step.ID), nil)
	}

	node := &Node{ID: step.ID, Step: step}
	g.Nodes[step.ID] = node
	return node, nil
}

// AddEdge connects the dependency relationship between two nodes: from
// must run before to.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Nodes[from]
	if !ok {
		return pkgerrors.NewConfigurationError("steps", fmt.Sprintf("unknown dependency %q", from), nil)
	}

	target, ok := g.Nodes[to]
	if !ok {
		return pkgerrors.NewConfigurationError("steps", fmt.Sprintf("unknown dependency target %q", to), nil)
	}

	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// TopologicalSort computes the DAG levels using Kahn's algorithm. A cycle
// leaves some nodes unprocessed, reported by step ID, sorted for
// determinism.
func (g *Graph) TopologicalSort() error {
	indegree := make(map[string]int, len(g.Nodes))
	for id := range g.Nodes {
		indegree[id] = 0
	}

	for _, node := range g.Nodes {
		for _, dep := range node.Dependents {
			indegree[dep.ID]++
		}
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		currentLevel := queue
		sort.Strings(currentLevel)
		levels = append(levels, append([]string(nil), currentLevel...))

		var nextLevel []string
		for _, id := range currentLevel {
			processed++
			node := g.Nodes[id]
			for _, dependent := range node.Dependents {
				indegree[dependent.ID]--
				if indegree[dependent.ID] == 0 {
					nextLevel = append(nextLevel, dependent.ID)
				}
			}
		}

		sort.Strings(nextLevel)
		queue = nextLevel
	}

	if processed != len(g.Nodes) {
		var cyclic []string
		for id, degree := range indegree {
			if degree > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Strings(cyclic)
		return pkgerrors.NewConfigurationError("steps", fmt.Sprintf("cycle detected among steps: %v", cyclic), nil)
	}

	g.Levels = levels
	return nil
}

// ExecutionOrder flattens Levels into a single dependency-respecting
// sequence: every step's dependencies appear before it, and steps within
// the same level are ordered alphabetically.
func (g *Graph) ExecutionOrder() []string {
	var out []string
	for _, level := range g.Levels {
		out = append(out, level...)
	}
	return out
}
