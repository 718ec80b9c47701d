package modify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/workflow"
)

func writeCSV(t *testing.T, rows string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sidecar.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func TestEnrichFromTableUpdateExistingRequiresExistingField(t *testing.T) {
	t.Parallel()

	csvPath := writeCSV(t, "id,cloud\na,12.5\n")
	impl, err := newEnrichFromTable(map[string]any{
		"input_file":    csvPath,
		"field_mapping": map[string]any{"properties.cloud": "cloud"},
	}, &workflow.Context{})
	require.NoError(t, err)
	e := impl.(*enrichFromTable)

	withField := item.Item{"id": "a", "properties": map[string]any{"cloud": nil}}
	out, err := e.Modify(withField, &workflow.Context{})
	require.NoError(t, err)
	require.Equal(t, "12.5", out["properties"].(map[string]any)["cloud"])

	withoutField := item.Item{"id": "a", "properties": map[string]any{}}
	out2, err := e.Modify(withoutField, &workflow.Context{})
	require.NoError(t, err)
	_, hasCloud := out2["properties"].(map[string]any)["cloud"]
	require.False(t, hasCloud)
}

func TestEnrichFromTableMergeCreatesMissingFields(t *testing.T) {
	t.Parallel()

	csvPath := writeCSV(t, "id,cloud\na,7\n")
	impl, err := newEnrichFromTable(map[string]any{
		"input_file":    csvPath,
		"field_mapping": map[string]any{"properties.cloud": "cloud"},
		"strategy":      "merge",
	}, &workflow.Context{})
	require.NoError(t, err)
	e := impl.(*enrichFromTable)

	it := item.Item{"id": "a"}
	out, err := e.Modify(it, &workflow.Context{})
	require.NoError(t, err)
	require.Equal(t, "7", out["properties"].(map[string]any)["cloud"])
}

func TestEnrichFromTableSubstitutesItemIDTemplateToken(t *testing.T) {
	t.Parallel()

	csvPath := writeCSV(t, "id,cloud\na,7\n")
	impl, err := newEnrichFromTable(map[string]any{
		"input_file":    csvPath,
		"field_mapping": map[string]any{"properties.source": "cloud"},
		"strategy":      "merge",
	}, &workflow.Context{})
	require.NoError(t, err)
	e := impl.(*enrichFromTable)
	e.table["a"]["cloud"] = "item-{item_id}"

	out, err := e.Modify(item.Item{"id": "a"}, &workflow.Context{})
	require.NoError(t, err)
	require.Equal(t, "item-a", out["properties"].(map[string]any)["source"])
}

func TestEnrichFromTablePassesThroughUnmatchedItems(t *testing.T) {
	t.Parallel()

	csvPath := writeCSV(t, "id,cloud\na,7\n")
	impl, err := newEnrichFromTable(map[string]any{
		"input_file":    csvPath,
		"field_mapping": map[string]any{"properties.cloud": "cloud"},
	}, &workflow.Context{})
	require.NoError(t, err)
	e := impl.(*enrichFromTable)

	it := item.Item{"id": "zzz"}
	out, err := e.Modify(it, &workflow.Context{})
	require.NoError(t, err)
	require.Equal(t, it, out)
}
