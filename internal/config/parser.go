package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// LoadWorkflow loads a workflow definition file from disk, validates it
// structurally, and returns the resulting model. Per spec.md §6.3 this
// is the language-neutral "LoadWorkflow" entry point.
func LoadWorkflow(path string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.NewConfigurationError(path, "read workflow file", err)
	}

	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		line := extractLine(err)
		return nil, pkgerrors.NewConfigurationError(fmt.Sprintf("%s:%d", path, line), "parse workflow YAML", err)
	}

	if err := Validate(&def); err != nil {
		return nil, err
	}

	return &def, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}

	return line
}
