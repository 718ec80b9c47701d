// Package workflow defines the shared per-run state bag threaded through
// a pipeline run and its matrix children.
package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/geoflow/pipeline/internal/checkpoint"
	"github.com/geoflow/pipeline/internal/failures"
	"github.com/geoflow/pipeline/internal/logger"
)

// Context is the thin value object passed to every step constructor and
// every role invocation. It is built once at run start and, aside from
// the fork-overlay merge, is treated as read-only during execution.
type Context struct {
	Context context.Context

	RunID      string
	WorkflowID string

	MatrixEntry map[string]any
	Data        map[string]any

	Logger     *logger.Logger
	Failures   *failures.Collector
	Checkpoint *checkpoint.Manager
}

// New builds the root Context for a run, minting a fresh run id.
func New(ctx context.Context, workflowID string, log *logger.Logger, cp *checkpoint.Manager) *Context {
	return &Context{
		Context:     ctx,
		RunID:       uuid.NewString(),
		WorkflowID:  workflowID,
		MatrixEntry: map[string]any{},
		Data:        map[string]any{},
		Logger:      log,
		Failures:    failures.NewCollector(),
		Checkpoint:  cp,
	}
}

// Fork returns a new Context for a matrix child: the logger and
// checkpoint handles are shared, a fresh failure collector is created,
// and Data is shallow-copied with overlay keys applied on top alongside
// the matrix entry itself.
func (c *Context) Fork(overlay map[string]any) *Context {
	data := make(map[string]any, len(c.Data)+len(overlay))
	for k, v := range c.Data {
		data[k] = v
	}
	for k, v := range overlay {
		data[k] = v
	}

	entry := make(map[string]any, len(overlay))
	for k, v := range overlay {
		entry[k] = v
	}

	childLogger := c.Logger
	if childLogger != nil {
		childLogger = childLogger.WithFields(map[string]any{"matrix_entry": entry})
	}

	return &Context{
		Context:     c.Context,
		RunID:       c.RunID,
		WorkflowID:  c.WorkflowID,
		MatrixEntry: entry,
		Data:        data,
		Logger:      childLogger,
		Failures:    failures.NewCollector(),
		Checkpoint:  c.Checkpoint,
	}
}

// TemplateVars exposes the context's collection_id (from MatrixEntry,
// falling back to Data) as the string-keyed variable map the Field-Path
// Engine substitutes. Callers add item_id themselves.
func (c *Context) TemplateVars() map[string]string {
	vars := map[string]string{
		"collection_id": stringValue(c.Data["collection_id"]),
	}
	if v, ok := c.MatrixEntry["collection_id"]; ok {
		vars["collection_id"] = stringValue(v)
	}
	return vars
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
