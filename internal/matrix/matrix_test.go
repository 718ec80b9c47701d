package matrix

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geoflow/pipeline/internal/checkpoint"
	"github.com/geoflow/pipeline/internal/config"
	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/logger"
	"github.com/geoflow/pipeline/internal/steps"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

const fetcherKind = "matrixTestFetcher"
const bundlerKind = "matrixTestBundler"

type perCollectionFetcher struct{}

func (perCollectionFetcher) Fetch(ctx *workflow.Context, out chan<- item.Item) error {
	collectionID, _ := ctx.MatrixEntry["collection_id"].(string)
	if collectionID == "A" {
		out <- item.Item{"id": "a1", "collection": "A"}
		return nil
	}
	out <- item.Item{"id": "b1", "collection": "B"}
	return nil
}

type failOnA struct{}

func (failOnA) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	if it.Collection() == "A" {
		return nil, pkgerrors.NewDataProcessingError("check", it.ID(), assertErr)
	}
	return it, nil
}

var assertErr = pkgerrors.NewValidationError("check", "a1", "", nil)

type discardBundler struct{}

func (discardBundler) Add(it item.Item, ctx *workflow.Context) error { return nil }
func (discardBundler) Finalize(ctx *workflow.Context) error          { return nil }
func (discardBundler) OutputPathHint() string                        { return "" }

func init() {
	steps.Register(fetcherKind, steps.RoleFetcher, func(map[string]any, *workflow.Context) (any, error) {
		return perCollectionFetcher{}, nil
	})
	steps.Register(bundlerKind, steps.RoleBundler, func(map[string]any, *workflow.Context) (any, error) {
		return discardBundler{}, nil
	})
	steps.Register("matrixTestCheck", steps.RoleModifier, func(map[string]any, *workflow.Context) (any, error) {
		return failOnA{}, nil
	})
}

func TestMatrixRunIsolatesFailuresPerEntry(t *testing.T) {
	t.Parallel()

	def := &config.WorkflowDefinition{
		Name:     "matrix-test",
		Strategy: &config.StrategyConfig{Matrix: []map[string]any{{"collection_id": "A"}, {"collection_id": "B"}}},
		Steps: []config.StepConfig{
			{ID: "src", Kind: fetcherKind},
			{ID: "check", Kind: "matrixTestCheck", DependsOn: []string{"src"}},
			{ID: "sink", Kind: bundlerKind, DependsOn: []string{"check"}},
		},
	}

	log, err := logger.New(logger.Options{})
	require.NoError(t, err)
	cp := checkpoint.NewManager(t.TempDir(), "matrix-test")
	parent := workflow.New(context.Background(), "matrix-test", log, cp)

	results, err := Run(def, parent)
	require.NoError(t, err)
	require.Len(t, results, 2)

	resultA, resultB := results[0], results[1]
	require.Equal(t, "completed_with_failures", resultA.Status)
	require.Equal(t, 1, resultA.FailureCount)
	require.Equal(t, "a1", resultA.Failures[0].ItemID)

	require.Equal(t, "completed", resultB.Status)
	require.Equal(t, 0, resultB.FailureCount)
	require.Equal(t, 1, resultB.ItemsProcessed)
}
