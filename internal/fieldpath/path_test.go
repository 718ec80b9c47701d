package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePathQuotedSegmentNotSplitOnInnerDot(t *testing.T) {
	t.Parallel()

	segs, err := ParsePath(`assets."ANG.txt".href`)
	require.NoError(t, err)
	require.Equal(t, []string{"assets", "ANG.txt", "href"}, segs)
}

func TestParsePathRejectsUnterminatedQuote(t *testing.T) {
	t.Parallel()

	_, err := ParsePath(`assets."ANG.txt`)
	require.Error(t, err)
}

func TestParsePathRejectsEmptySegment(t *testing.T) {
	t.Parallel()

	_, err := ParsePath(`assets..href`)
	require.Error(t, err)
}

func TestGetNestedReturnsDefaultWhenAbsent(t *testing.T) {
	t.Parallel()

	m := map[string]any{"properties": map[string]any{"foo": nil}}

	require.Nil(t, GetNested(m, []string{"properties", "foo"}, Missing))
	require.Equal(t, Missing, GetNested(m, []string{"properties", "bar"}, Missing))
	require.Equal(t, Missing, GetNested(m, []string{"other", "bar"}, Missing))
}

func TestSetNestedCreatesIntermediateMaps(t *testing.T) {
	t.Parallel()

	m := map[string]any{}
	err := SetNested(m, []string{"assets", "red", "href"}, "r", true)
	require.NoError(t, err)
	require.Equal(t, "r", GetNested(m, []string{"assets", "red", "href"}, nil))
}

func TestSetNestedFailsWhenBlockedByNonMap(t *testing.T) {
	t.Parallel()

	m := map[string]any{"assets": "not-a-map"}
	err := SetNested(m, []string{"assets", "red"}, "r", true)
	require.Error(t, err)
}

func TestDeleteNestedIsIdempotent(t *testing.T) {
	t.Parallel()

	m := map[string]any{"a": map[string]any{"b": 1}}
	DeleteNested(m, []string{"a", "b"})
	DeleteNested(m, []string{"a", "b"})
	DeleteNested(m, []string{"x", "y"})
	require.NotContains(t, m["a"].(map[string]any), "b")
}
