package config

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/geoflow/pipeline/internal/steps"
	pkgerrors "github.com/geoflow/pipeline/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	stepIDPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("step_id", func(fl validator.FieldLevel) bool {
			return stepIDPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Validate performs schema validation, DAG structural checks, and role
// assignment checks on def, per spec.md §4.E.
func Validate(def *WorkflowDefinition) error {
	if def == nil {
		return pkgerrors.NewConfigurationError("workflow", "definition is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(def); err != nil {
		return convertValidationError(err)
	}

	stepIndex := make(map[string]int, len(def.Steps))
	for i, step := range def.Steps {
		if err := v.Struct(step); err != nil {
			return convertValidationError(err)
		}
		if _, exists := stepIndex[step.ID]; exists {
			return pkgerrors.NewConfigurationError(fieldForStep(i, "id"), fmt.Sprintf("duplicate step id %q", step.ID), nil)
		}
		if _, ok := steps.RoleOf(step.Kind); !ok {
			return pkgerrors.NewConfigurationError(fieldForStep(i, "kind"), fmt.Sprintf("unknown step kind %q", step.Kind), nil)
		}
		stepIndex[step.ID] = i
	}

	for i, step := range def.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := stepIndex[dep]; !ok {
				return pkgerrors.NewConfigurationError(fieldForStep(i, "depends_on"), fmt.Sprintf("references unknown step %q", dep), nil)
			}
		}
	}

	if err := validateRoles(def.Steps); err != nil {
		return err
	}

	if def.Strategy != nil && len(def.Strategy.Matrix) > 0 {
		if err := validateMatrixCollectionKey(def); err != nil {
			return err
		}
	}

	return nil
}

// validateRoles enforces exactly one Fetcher with no upstream
// dependency and exactly one Bundler with no downstream dependents.
func validateRoles(stepsList []StepConfig) error {
	dependents := make(map[string]int)
	for _, s := range stepsList {
		for _, dep := range s.DependsOn {
			dependents[dep]++
		}
	}

	var fetchers, bundlers []string
	for _, s := range stepsList {
		role, _ := steps.RoleOf(s.Kind)
		switch role {
		case steps.RoleFetcher:
			if len(s.DependsOn) == 0 {
				fetchers = append(fetchers, s.ID)
			}
		case steps.RoleBundler:
			if dependents[s.ID] == 0 {
				bundlers = append(bundlers, s.ID)
			}
		}
	}

	if len(fetchers) != 1 {
		return pkgerrors.NewConfigurationError("steps", fmt.Sprintf("workflow must have exactly one source Fetcher step, found %d", len(fetchers)), nil)
	}
	if len(bundlers) != 1 {
		return pkgerrors.NewConfigurationError("steps", fmt.Sprintf("workflow must have exactly one sink Bundler step, found %d", len(bundlers)), nil)
	}
	return nil
}

// validateMatrixCollectionKey rejects a matrix workflow when no step's
// config declares a collection_id key and some matrix entry lacks one,
// per spec.md §9.2's SHOULD.
func validateMatrixCollectionKey(def *WorkflowDefinition) error {
	for _, s := range def.Steps {
		if _, ok := s.Config["collection_id"]; ok {
			return nil
		}
	}
	for _, entry := range def.Strategy.Matrix {
		if _, ok := entry["collection_id"]; !ok {
			return pkgerrors.NewConfigurationError("strategy.matrix", "matrix strategy requires a derivable collection_id in each entry or a step config", nil)
		}
	}
	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}
	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag %q", field, ve.Tag())
		return pkgerrors.NewConfigurationError(field, msg, err)
	}
	return pkgerrors.NewConfigurationError("workflow", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	parts := strings.Split(ns, ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}

func fieldForStep(index int, field string) string {
	return fmt.Sprintf("steps[%d].%s", index, field)
}
