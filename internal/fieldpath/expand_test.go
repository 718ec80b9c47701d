package fieldpath

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandUpdatesWildcardIndependence(t *testing.T) {
	t.Parallel()

	it := map[string]any{
		"id": "i1",
		"assets": map[string]any{
			"red":  map[string]any{"href": "r"},
			"blue": map[string]any{"href": "b"},
		},
	}

	patterns := map[string]any{
		"assets.*.alternate.s3.href": "s3://bucket/{asset_key}",
	}

	expanded, err := ExpandUpdates(patterns, it, nil)
	require.NoError(t, err)
	require.Len(t, expanded, 2)

	for path, v := range expanded {
		require.NoError(t, SetNested(it, mustParse(t, path), v, true))
	}

	assets := it["assets"].(map[string]any)
	red := assets["red"].(map[string]any)
	blue := assets["blue"].(map[string]any)
	require.Equal(t, "s3://bucket/red", GetNested(red, []string{"alternate", "s3", "href"}, nil))
	require.Equal(t, "s3://bucket/blue", GetNested(blue, []string{"alternate", "s3", "href"}, nil))

	redAlt := red["alternate"].(map[string]any)
	blueAlt := blue["alternate"].(map[string]any)
	require.NotEqual(t, reflect.ValueOf(redAlt["s3"]).Pointer(), reflect.ValueOf(blueAlt["s3"]).Pointer())

	redAlt["s3"].(map[string]any)["href"] = "mutated"
	require.Equal(t, "s3://bucket/blue", GetNested(blue, []string{"alternate", "s3", "href"}, nil))
}

func TestExpandUpdatesQuotedSegmentDoesNotCreateSplitKey(t *testing.T) {
	t.Parallel()

	it := map[string]any{
		"id": "i2",
		"assets": map[string]any{
			"ANG.txt": map[string]any{"href": "x"},
		},
	}

	patterns := map[string]any{
		`assets."ANG.txt".href`: "y",
	}

	expanded, err := ExpandUpdates(patterns, it, nil)
	require.NoError(t, err)
	require.Len(t, expanded, 1)

	for path, v := range expanded {
		require.NoError(t, SetNested(it, mustParse(t, path), v, true))
	}

	assets := it["assets"].(map[string]any)
	require.Len(t, assets, 1)
	entry, ok := assets["ANG.txt"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "y", entry["href"])
	_, hasSplit := assets["ANG"]
	require.False(t, hasSplit)
}

func TestFilterUpdateExistingRequiresFieldPresence(t *testing.T) {
	t.Parallel()

	it := map[string]any{
		"id":         "i3",
		"properties": map[string]any{"foo": nil},
	}

	expanded := map[string]any{
		"properties.foo": "set",
		"missing.bar":    "skip",
	}

	filtered := FilterUpdateExisting(expanded, it)
	require.Contains(t, filtered, "properties.foo")
	require.NotContains(t, filtered, "missing.bar")
}

func mustParse(t *testing.T, path string) []string {
	t.Helper()
	segs, err := ParsePath(path)
	require.NoError(t, err)
	return segs
}
