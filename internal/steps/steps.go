// Package steps defines the three step role contracts and the
// compile-time registry mapping a workflow step's "kind" string to a
// constructor. The registry is closed: there is no plugin loading, per
// spec.md's Non-goals.
package steps

import (
	"fmt"
	"sync"

	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

// Role identifies which of the three pipeline positions a step kind
// fills. Role assignment is a property of the kind, looked up in the
// registry, not something a workflow author declares directly.
type Role string

const (
	RoleFetcher  Role = "fetcher"
	RoleModifier Role = "modifier"
	RoleBundler  Role = "bundler"
)

// Fetcher is the source role: it emits items lazily onto a channel and
// must honor ctx.Context cancellation.
type Fetcher interface {
	Fetch(ctx *workflow.Context, out chan<- item.Item) error
}

// Modifier is a synchronous, per-item transformation role.
type Modifier interface {
	Modify(it item.Item, ctx *workflow.Context) (item.Item, error)
}

// Bundler is the sink role: it accumulates items and commits them to an
// output artifact at Finalize.
type Bundler interface {
	Add(it item.Item, ctx *workflow.Context) error
	Finalize(ctx *workflow.Context) error
	// OutputPathHint returns the last output path to report to the
	// checkpoint manager's MarkCompleted call, or "" if none applies.
	OutputPathHint() string
}

// Constructor builds a role implementation from a step's raw config map
// and the run's workflow context.
type Constructor func(config map[string]any, ctx *workflow.Context) (any, error)

type registration struct {
	role        Role
	constructor Constructor
}

var (
	mu       sync.RWMutex
	registry = make(map[string]registration)
)

// Register adds kind to the compile-time registry. It is called from
// init() in each built-in step's file; a duplicate kind is a
// programming error and panics at init time.
func Register(kind string, role Role, constructor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("steps: duplicate registration for kind %q", kind))
	}
	registry[kind] = registration{role: role, constructor: constructor}
}

// RoleOf returns the role a kind fills, or false if kind is unknown.
func RoleOf(kind string) (Role, bool) {
	mu.RLock()
	defer mu.RUnlock()
	r, ok := registry[kind]
	if !ok {
		return "", false
	}
	return r.role, true
}

// List returns every registered kind name.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// Build constructs a role implementation for kind. An unknown kind is a
// ConfigurationError per spec.md §4.F.
func Build(kind string, config map[string]any, ctx *workflow.Context) (any, Role, error) {
	mu.RLock()
	reg, ok := registry[kind]
	mu.RUnlock()
	if !ok {
		return nil, "", pkgerrors.NewConfigurationError("kind", fmt.Sprintf("unknown step kind %q", kind), nil)
	}
	impl, err := reg.constructor(config, ctx)
	if err != nil {
		return nil, "", err
	}
	return impl, reg.role, nil
}
