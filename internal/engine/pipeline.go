package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/geoflow/pipeline/internal/config"
	"github.com/geoflow/pipeline/internal/failures"
	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/steps"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

// channelCapacity bounds the Fetcher -> runtime stream, per spec.md's
// backpressure requirement.
const channelCapacity = 32

// Status values a Result's Status field may hold.
const (
	StatusCompleted             = "completed"
	StatusCompletedWithFailures = "completed_with_failures"
	StatusFailed                = "failed"

	summaryTopN = 3
)

// Result is the outcome of running one pipeline to completion.
type Result struct {
	Status         string
	ItemsProcessed int
	FailureCount   int
	MatrixEntry    map[string]any
	Summary        string
	Failures       []failures.Record
}

type modifierStep struct {
	id   string
	impl steps.Modifier
}

// Pipeline drives one instantiated, ordered set of steps over a single
// item stream.
type Pipeline struct {
	fetcherID string
	fetcher   steps.Fetcher

	modifiers []modifierStep

	bundlerID string
	bundler   steps.Bundler

	ctx *workflow.Context
}

// BuildPipeline validates the DAG and instantiates every step in
// execution order against ctx, binding exactly one Fetcher and one
// Bundler and the remaining steps as Modifiers in dependency order.
func BuildPipeline(def *config.WorkflowDefinition, ctx *workflow.Context) (*Pipeline, error) {
	graph, err := BuildDAG(def.Steps)
	if err != nil {
		return nil, err
	}

	stepMap := config.StepMap(def.Steps)
	p := &Pipeline{ctx: ctx}

	for _, id := range graph.ExecutionOrder() {
		sc := stepMap[id]
		impl, role, err := steps.Build(sc.Kind, sc.Config, ctx)
		if err != nil {
			return nil, err
		}

		switch role {
		case steps.RoleFetcher:
			f, ok := impl.(steps.Fetcher)
			if !ok {
				return nil, pkgerrors.NewConfigurationError("steps."+id, fmt.Sprintf("kind %q registered as fetcher does not implement Fetcher", sc.Kind), nil)
			}
			p.fetcherID, p.fetcher = id, f
		case steps.RoleModifier:
			m, ok := impl.(steps.Modifier)
			if !ok {
				return nil, pkgerrors.NewConfigurationError("steps."+id, fmt.Sprintf("kind %q registered as modifier does not implement Modifier", sc.Kind), nil)
			}
			p.modifiers = append(p.modifiers, modifierStep{id: id, impl: m})
		case steps.RoleBundler:
			b, ok := impl.(steps.Bundler)
			if !ok {
				return nil, pkgerrors.NewConfigurationError("steps."+id, fmt.Sprintf("kind %q registered as bundler does not implement Bundler", sc.Kind), nil)
			}
			p.bundlerID, p.bundler = id, b
		}
	}

	if p.fetcher == nil {
		return nil, pkgerrors.NewConfigurationError("steps", "workflow has no fetcher step", nil)
	}
	if p.bundler == nil {
		return nil, pkgerrors.NewConfigurationError("steps", "workflow has no bundler step", nil)
	}

	return p, nil
}

// Run drives the stream to completion per spec.md §4.G: items flow
// Fetcher -> (skip-gate) -> Modifiers -> Bundler -> Checkpoint, with
// critical errors aborting the run and item-level errors routed to the
// failure collector.
func (p *Pipeline) Run() (Result, error) {
	ch := make(chan item.Item, channelCapacity)
	fetchDone := make(chan error, 1)

	// The fetcher runs under its own cancellable context so that a
	// critical error can stop it even while it is blocked on a full ch.
	fetchCtx, cancelFetch := context.WithCancel(p.ctx.Context)
	defer cancelFetch()
	fetchWfCtx := *p.ctx
	fetchWfCtx.Context = fetchCtx

	go func() {
		defer close(ch)
		fetchDone <- p.fetcher.Fetch(&fetchWfCtx, ch)
	}()

	itemsProcessed := 0
	var critical error

loop:
	for {
		select {
		case <-p.ctx.Context.Done():
			critical = pkgerrors.NewCancellationError(p.ctx.Context.Err())
			p.ctx.Failures.Add(p.fetcherID, "", "CancellationError", critical.Error(), nil)
			break loop
		case it, ok := <-ch:
			if !ok {
				break loop
			}
			processed, err := p.processItem(it)
			if err != nil {
				critical = err
				break loop
			}
			if processed {
				itemsProcessed++
			}
		}
	}

	if critical != nil {
		cancelFetch()
	}

	if fetchErr := <-fetchDone; fetchErr != nil && critical == nil {
		if isCritical(fetchErr) || !continueOnError(p.ctx) {
			critical = fetchErr
		} else {
			p.ctx.Failures.Add(p.fetcherID, "", errorKind(fetchErr), fetchErr.Error(), nil)
		}
	}

	if finalizeErr := p.bundler.Finalize(p.ctx); finalizeErr != nil && critical == nil {
		critical = finalizeErr
	}

	if flushErr := p.ctx.Checkpoint.Flush(); flushErr != nil && critical == nil {
		critical = flushErr
	}

	return p.result(itemsProcessed, critical), critical
}

// processItem runs one item through the skip-gate, every Modifier, and
// the Bundler, reporting item-level failures to the collector and
// returning only critical errors that should abort the whole pipeline.
// The returned bool reports whether the item reached the Bundler
// successfully (spec.md's "items_processed" count).
func (p *Pipeline) processItem(it item.Item) (bool, error) {
	id := it.ID()
	if id == "" {
		p.ctx.Failures.Add(p.fetcherID, "", "ValidationError", "item missing required id field", nil)
		return false, nil
	}

	collectionID := it.Collection()
	if p.ctx.Checkpoint.IsCompleted(collectionID, id) {
		return false, nil
	}

	for _, m := range p.modifiers {
		out, err := m.impl.Modify(it, p.ctx)
		if err != nil {
			if isCritical(err) || !continueOnError(p.ctx) {
				return false, err
			}
			p.ctx.Failures.Add(m.id, id, errorKind(err), err.Error(), nil)
			return false, p.ctx.Checkpoint.MarkFailed(collectionID, id, err.Error())
		}
		if item.IsDrop(out) {
			return false, nil
		}
		it = out
	}

	if err := p.bundler.Add(it, p.ctx); err != nil {
		if isCritical(err) || !continueOnError(p.ctx) {
			return false, err
		}
		p.ctx.Failures.Add(p.bundlerID, id, errorKind(err), err.Error(), nil)
		return false, p.ctx.Checkpoint.MarkFailed(collectionID, id, err.Error())
	}

	if err := p.ctx.Checkpoint.MarkCompleted(collectionID, id, p.bundler.OutputPathHint()); err != nil {
		return false, err
	}
	return true, nil
}

// continueOnError reports whether item-level failures should be
// absorbed by the failure collector (true, the default) or escalated to
// abort the whole pipeline (false), per the run's --continue-on-error
// setting.
func continueOnError(ctx *workflow.Context) bool {
	v, ok := ctx.Data["continue_on_error"].(bool)
	if !ok {
		return true
	}
	return v
}

// isCritical reports whether err is one of the critical kinds that
// aborts the whole pipeline, per spec.md §7's propagation policy.
func isCritical(err error) bool {
	switch err.(type) {
	case *pkgerrors.ConfigurationError, *pkgerrors.IoError, *pkgerrors.CancellationError:
		return true
	default:
		return false
	}
}

// errorKind names err's taxonomy kind for the failure record.
func errorKind(err error) string {
	switch err.(type) {
	case *pkgerrors.DataProcessingError:
		return "DataProcessingError"
	case *pkgerrors.ValidationError:
		return "ValidationError"
	case *pkgerrors.IoError:
		return "IoError"
	case *pkgerrors.ConfigurationError:
		return "ConfigurationError"
	case *pkgerrors.CancellationError:
		return "CancellationError"
	default:
		return "Error"
	}
}

func (p *Pipeline) result(itemsProcessed int, critical error) Result {
	records := p.ctx.Failures.Records()

	status := StatusCompleted
	switch {
	case critical != nil:
		status = StatusFailed
	case len(records) > 0:
		status = StatusCompletedWithFailures
	}

	return Result{
		Status:         status,
		ItemsProcessed: itemsProcessed,
		FailureCount:   len(records),
		MatrixEntry:    p.ctx.MatrixEntry,
		Summary:        summarize(status, itemsProcessed, records, critical),
		Failures:       records,
	}
}

// summarize builds the one-paragraph human-readable WorkflowResult
// summary: status, counts, and the top-N step ids by failure count.
func summarize(status string, itemsProcessed int, records []failures.Record, critical error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d item(s) processed, %d failure(s)", status, itemsProcessed, len(records))

	if critical != nil {
		fmt.Fprintf(&b, "; aborted: %v", critical)
	}

	if len(records) > 0 {
		byStep := make(map[string]int)
		for _, r := range records {
			byStep[r.StepID]++
		}
		ids := make([]string, 0, len(byStep))
		for id := range byStep {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			if byStep[ids[i]] != byStep[ids[j]] {
				return byStep[ids[i]] > byStep[ids[j]]
			}
			return ids[i] < ids[j]
		})
		if len(ids) > summaryTopN {
			ids = ids[:summaryTopN]
		}
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = fmt.Sprintf("%s (%d)", id, byStep[id])
		}
		fmt.Fprintf(&b, "; top failing steps: %s", strings.Join(parts, ", "))
	}

	return b.String()
}
