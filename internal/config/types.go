// Package config defines the YAML-facing workflow definition and its
// structural and per-field validation.
package config

// WorkflowDefinition is the full, immutable-after-validation workflow
// document: a name, an ordered sequence of steps, and an optional
// matrix strategy.
type WorkflowDefinition struct {
	Name        string         `yaml:"name" validate:"required,min=1,max=200"`
	Description string         `yaml:"description,omitempty"`
	Strategy    *StrategyConfig `yaml:"strategy,omitempty"`
	Steps       []StepConfig   `yaml:"steps" validate:"required,min=1,dive"`
}

// StepConfig describes one node in the workflow DAG. Config is a
// free-form map whose shape is defined entirely by Kind; the core never
// interprets it.
type StepConfig struct {
	ID        string         `yaml:"id" validate:"required,step_id"`
	Kind      string         `yaml:"kind" validate:"required"`
	Config    map[string]any `yaml:"config,omitempty"`
	DependsOn []string       `yaml:"depends_on,omitempty"`
}

// StrategyConfig declares matrix fan-out: an ordered list of key/value
// overlays, one full pipeline instance per entry.
type StrategyConfig struct {
	Matrix []map[string]any `yaml:"matrix,omitempty"`
}

// StepMap builds a lookup table for steps by ID.
func StepMap(steps []StepConfig) map[string]StepConfig {
	out := make(map[string]StepConfig, len(steps))
	for _, step := range steps {
		out[step.ID] = step
	}
	return out
}
