package modify

import (
	"os"

	"github.com/xeipuuv/gojsonschema"

	"github.com/geoflow/pipeline/internal/item"
	"github.com/geoflow/pipeline/internal/steps"
	"github.com/geoflow/pipeline/internal/workflow"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

func init() {
	steps.Register("ValidateSchema", steps.RoleModifier, newValidateSchema)
}

const stepKindValidateSchema = "validate_schema"

type validateSchema struct {
	schema *gojsonschema.Schema
	field  string
}

func newValidateSchema(config map[string]any, ctx *workflow.Context) (any, error) {
	schemaFile, _ := config["schema_file"].(string)
	if schemaFile == "" {
		return nil, pkgerrors.NewConfigurationError("config.schema_file", "ValidateSchema requires schema_file", nil)
	}

	field, _ := config["field"].(string)
	if field == "" {
		field = "properties"
	}

	doc, err := os.ReadFile(schemaFile)
	if err != nil {
		return nil, pkgerrors.NewConfigurationError("config.schema_file", "read JSON Schema document", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return nil, pkgerrors.NewConfigurationError("config.schema_file", "compile JSON Schema document", err)
	}

	return &validateSchema{schema: schema, field: field}, nil
}

// Modify validates it[field] against the configured JSON Schema. A
// schema violation is a per-item ValidationError; the item is dropped.
func (v *validateSchema) Modify(it item.Item, ctx *workflow.Context) (item.Item, error) {
	payload, _ := it[v.field]
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return nil, pkgerrors.NewValidationError(stepKindValidateSchema, it.ID(), v.field, err)
	}

	if !result.Valid() {
		first := result.Errors()[0]
		return nil, pkgerrors.NewValidationError(stepKindValidateSchema, it.ID(), first.Field(), firstSchemaError(result))
	}

	return it, nil
}

func firstSchemaError(result *gojsonschema.Result) error {
	return schemaError{msg: result.Errors()[0].Description()}
}

type schemaError struct{ msg string }

func (e schemaError) Error() string { return e.msg }
