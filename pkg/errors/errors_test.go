package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigurationErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewConfigurationError("steps[1].kind", "unknown step kind", underlying)

	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "steps[1].kind", configErr.Field)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "steps[1].kind")
}

func TestDataProcessingErrorIncludesItemContext(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("join failed")
	err := NewDataProcessingError("enrich_from_table", "asset-42", underlying)

	var dpErr *DataProcessingError
	require.ErrorAs(t, err, &dpErr)
	require.Equal(t, "enrich_from_table", dpErr.StepID)
	require.Equal(t, "asset-42", dpErr.ItemID)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestValidationErrorAggregatesFields(t *testing.T) {
	t.Parallel()

	err := NewValidationError("validate_schema", "asset-7", "properties.resolution_m", stdErrors.New("must be a number"))

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "validate_schema", validationErr.StepID)
	require.Equal(t, "asset-7", validationErr.ItemID)
	require.Equal(t, "properties.resolution_m", validationErr.Field)
	require.Contains(t, err.Error(), "must be a number")
}

func TestIoErrorIncludesPath(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("permission denied")
	err := NewIoError("/var/run/geoflow/checkpoints/run.jsonl", underlying)

	var ioErr *IoError
	require.ErrorAs(t, err, &ioErr)
	require.Equal(t, "/var/run/geoflow/checkpoints/run.jsonl", ioErr.Path)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestCancellationErrorWrapsCause(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("context canceled")
	err := NewCancellationError(underlying)

	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "cancelled")
}
