// Package modify provides the built-in Modifier step kinds.
package modify

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/geoflow/pipeline/internal/fieldpath"
	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/steps"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

func init() {
	steps.Register("EnrichFromTable", steps.RoleModifier, newEnrichFromTable)
}

const stepKindEnrichFromTable = "enrich_from_table"

type enrichFromTable struct {
	table      map[string]map[string]string
	fieldMap   map[string]string
	joinColumn string
	strategy   string
}

func newEnrichFromTable(config map[string]any, ctx *workflow.Context) (any, error) {
	inputFile, _ := config["input_file"].(string)
	if inputFile == "" {
		return nil, pkgerrors.NewConfigurationError("config.input_file", "EnrichFromTable requires input_file", nil)
	}

	joinColumn, _ := config["join_column"].(string)
	if joinColumn == "" {
		joinColumn = "id"
	}

	strategy, _ := config["strategy"].(string)
	if strategy == "" {
		strategy = "update_existing"
	}
	if strategy != "update_existing" && strategy != "merge" {
		return nil, pkgerrors.NewConfigurationError("config.strategy", "strategy must be update_existing or merge", nil)
	}

	fieldMap := make(map[string]string)
	if raw, ok := config["field_mapping"].(map[string]any); ok {
		for target, col := range raw {
			if s, ok := col.(string); ok {
				fieldMap[target] = s
			}
		}
	}

	table, err := loadTable(inputFile, joinColumn)
	if err != nil {
		return nil, err
	}

	return &enrichFromTable{table: table, fieldMap: fieldMap, joinColumn: joinColumn, strategy: strategy}, nil
}

func loadTable(path, joinColumn string) (map[string]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pkgerrors.NewConfigurationError("config.input_file", "open sidecar table", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, pkgerrors.NewConfigurationError("config.input_file", "read sidecar table header", err)
	}

	joinIdx := -1
	for i, h := range header {
		if h == joinColumn {
			joinIdx = i
		}
	}
	if joinIdx < 0 {
		return nil, pkgerrors.NewConfigurationError("config.join_column", "sidecar table has no column "+joinColumn, nil)
	}

	table := make(map[string]map[string]string)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, pkgerrors.NewConfigurationError("config.input_file", "read sidecar table row", err)
		}
		record := make(map[string]string, len(header))
		for i, v := range row {
			if i < len(header) {
				record[header[i]] = v
			}
		}
		table[row[joinIdx]] = record
	}
	return table, nil
}

// Modify joins the sidecar row matching the item's id onto the item's
// field-path-addressed locations. Items with no matching row pass
// through unchanged.
func (e *enrichFromTable) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	id := it.ID()
	row, ok := e.table[id]
	if !ok {
		return it, nil
	}

	patterns := make(map[string]any, len(e.fieldMap))
	for targetPath, col := range e.fieldMap {
		if v, ok := row[col]; ok {
			patterns[targetPath] = v
		}
	}

	vars := ctx.TemplateVars()
	vars["item_id"] = id

	expanded, err := fieldpath.ExpandUpdates(patterns, it, vars)
	if err != nil {
		return nil, pkgerrors.NewDataProcessingError(stepKindEnrichFromTable, id, err)
	}

	if e.strategy == "update_existing" {
		expanded = fieldpath.FilterUpdateExisting(expanded, it)
	}

	createMissing := e.strategy == "merge"
	for path, v := range expanded {
		segs, err := fieldpath.ParsePath(path)
		if err != nil {
			return nil, pkgerrors.NewDataProcessingError(stepKindEnrichFromTable, id, err)
		}
		if err := fieldpath.SetNested(it, segs, v, createMissing); err != nil {
			return nil, pkgerrors.NewDataProcessingError(stepKindEnrichFromTable, id, err)
		}
	}

	return it, nil
}
