package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geoflow/pipeline/internal/checkpoint"
	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/logger"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

var errBoom = errors.New("boom")

type fakeFetcher struct {
	items []item.Item
}

func (f *fakeFetcher) Fetch(ctx *workflow.Context, out chan<- item.Item) error {
	for _, it := range f.items {
		select {
		case <-ctx.Context.Done():
			return nil
		case out <- it:
		}
	}
	return nil
}

type tagModifier struct{}

func (tagModifier) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	props, _ := it["properties"].(map[string]any)
	if props == nil {
		props = map[string]any{}
	}
	props["tag"] = "v"
	it["properties"] = props
	return it, nil
}

type memBundler struct {
	items []item.Item
}

func (b *memBundler) Add(it item.Item, ctx *workflow.Context) error {
	b.items = append(b.items, it)
	return nil
}

func (b *memBundler) Finalize(ctx *workflow.Context) error { return nil }
func (b *memBundler) OutputPathHint() string               { return "" }

func newTestContext(t *testing.T, root string) *workflow.Context {
	t.Helper()
	log, err := logger.New(logger.Options{})
	require.NoError(t, err)
	cp := checkpoint.NewManager(root, "wf")
	return workflow.New(context.Background(), "wf", log, cp)
}

func TestPipelineRunLinearThreeStep(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &fakeFetcher{items: []item.Item{{"id": "a"}, {"id": "b"}}},
		modifiers: []modifierStep{{id: "up", impl: tagModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, 2, result.ItemsProcessed)
	require.Equal(t, 0, result.FailureCount)

	require.Len(t, bundler.items, 2)
	for _, it := range bundler.items {
		require.Equal(t, "v", it["properties"].(map[string]any)["tag"])
	}
}

type missingIDModifier struct{}

func (missingIDModifier) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	return it, nil
}

func TestPipelineRunRecordsValidationFailureForMissingID(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &fakeFetcher{items: []item.Item{{"no_id": true}, {"id": "a"}}},
		modifiers: []modifierStep{{id: "up", impl: missingIDModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, StatusCompletedWithFailures, result.Status)
	require.Equal(t, 1, result.ItemsProcessed)
	require.Equal(t, 1, result.FailureCount)
	require.Equal(t, "ValidationError", result.Failures[0].ErrorKind)
}

type dropModifier struct{}

func (dropModifier) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	return item.Drop, nil
}

func TestPipelineRunDropSilentlyFiltersItem(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &fakeFetcher{items: []item.Item{{"id": "a"}}},
		modifiers: []modifierStep{{id: "up", impl: dropModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, 0, result.ItemsProcessed)
	require.Equal(t, 0, result.FailureCount)
	require.Empty(t, bundler.items)
}

type itemErrorModifier struct{}

func (itemErrorModifier) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	return nil, pkgerrors.NewDataProcessingError("up", it.ID(), errBoom)
}

func TestPipelineRunContinuesAfterItemLevelError(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &fakeFetcher{items: []item.Item{{"id": "a"}, {"id": "b"}}},
		modifiers: []modifierStep{{id: "up", impl: itemErrorModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, StatusCompletedWithFailures, result.Status)
	require.Equal(t, 0, result.ItemsProcessed)
	require.Equal(t, 2, result.FailureCount)
}

type criticalModifier struct{}

func (criticalModifier) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	return nil, pkgerrors.NewConfigurationError("up.config", "broken after construction", nil)
}

func TestPipelineRunAbortsOnCriticalError(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &fakeFetcher{items: []item.Item{{"id": "a"}}},
		modifiers: []modifierStep{{id: "up", impl: criticalModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.Error(t, err)
	require.Equal(t, StatusFailed, result.Status)
}

type flakyFetcher struct {
	items []item.Item
}

func (f *flakyFetcher) Fetch(ctx *workflow.Context, out chan<- item.Item) error {
	for _, it := range f.items {
		out <- it
	}
	return pkgerrors.NewDataProcessingError("src", "", errBoom)
}

func TestPipelineRunContinuesAfterFetcherItemLevelError(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &flakyFetcher{items: []item.Item{{"id": "a"}}},
		modifiers: []modifierStep{{id: "up", impl: tagModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, StatusCompletedWithFailures, result.Status)
	require.Equal(t, 1, result.ItemsProcessed)
	require.Equal(t, 1, result.FailureCount)
	require.Equal(t, "DataProcessingError", result.Failures[0].ErrorKind)
}

type brokenFetcher struct{}

func (brokenFetcher) Fetch(ctx *workflow.Context, out chan<- item.Item) error {
	return pkgerrors.NewIoError("upstream", errBoom)
}

func TestPipelineRunAbortsOnFetcherCriticalError(t *testing.T) {
	t.Parallel()

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   brokenFetcher{},
		modifiers: []modifierStep{{id: "up", impl: tagModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       newTestContext(t, t.TempDir()),
	}

	result, err := p.Run()
	require.Error(t, err)
	require.Equal(t, StatusFailed, result.Status)
}

func TestPipelineRunSkipsCheckpointedItems(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ctx := newTestContext(t, root)
	require.NoError(t, ctx.Checkpoint.MarkCompleted("", "a", ""))
	require.NoError(t, ctx.Checkpoint.MarkCompleted("", "b", ""))
	require.NoError(t, ctx.Checkpoint.Flush())

	bundler := &memBundler{}
	p := &Pipeline{
		fetcherID: "src",
		fetcher:   &fakeFetcher{items: []item.Item{{"id": "a"}, {"id": "b"}, {"id": "c"}}},
		modifiers: []modifierStep{{id: "up", impl: tagModifier{}}},
		bundlerID: "sink",
		bundler:   bundler,
		ctx:       ctx,
	}

	result, err := p.Run()
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	require.Equal(t, 1, result.ItemsProcessed)
	require.Len(t, bundler.items, 1)
	require.Equal(t, "c", bundler.items[0]["id"])
}
