package errors

import (
	"fmt"
)

// ConfigurationError represents a fatal failure while loading or validating
// a workflow definition: YAML parse failures, DAG violations, unknown step
// kinds, or malformed field paths. It aborts a run before any item flows.
type ConfigurationError struct {
	Field   string
	Message string
	Err     error
}

// NewConfigurationError constructs a ConfigurationError.
func NewConfigurationError(field, message string, err error) error {
	return &ConfigurationError{Field: field, Message: message, Err: err}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// DataProcessingError represents a per-item traversal or mutation failure
// raised by a Modifier. It is localized to the failing item: the item is
// dropped and the pipeline continues with the next one.
type DataProcessingError struct {
	StepID string
	ItemID string
	Err    error
}

// NewDataProcessingError constructs a DataProcessingError.
func NewDataProcessingError(stepID, itemID string, err error) error {
	return &DataProcessingError{StepID: stepID, ItemID: itemID, Err: err}
}

func (e *DataProcessingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("data processing error in step %s for item %s: %v", e.StepID, e.ItemID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *DataProcessingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError represents a per-item schema or constraint failure. It
// carries the same disposition as DataProcessingError: the item is
// dropped, the pipeline continues.
type ValidationError struct {
	StepID string
	ItemID string
	Field  string
	Err    error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(stepID, itemID, field string, err error) error {
	return &ValidationError{StepID: stepID, ItemID: itemID, Field: field, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error in step %s for item %s: %s: %v", e.StepID, e.ItemID, e.Field, e.Err)
	}
	return fmt.Sprintf("validation error in step %s for item %s: %v", e.StepID, e.ItemID, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IoError represents a checkpoint or bundler write failure. Raised during
// Flush or Finalize, it is always critical: the run terminates as failed.
type IoError struct {
	Path string
	Err  error
}

// NewIoError constructs an IoError.
func NewIoError(path string, err error) error {
	return &IoError{Path: path, Err: err}
}

func (e *IoError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path != "" {
		return fmt.Sprintf("io error: %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("io error: %v", e.Err)
}

// Unwrap exposes the underlying error.
func (e *IoError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// CancellationError represents a pipeline stopped in response to context
// cancellation, either from the caller or from a prior fatal error.
type CancellationError struct {
	Err error
}

// NewCancellationError constructs a CancellationError.
func NewCancellationError(err error) error {
	return &CancellationError{Err: err}
}

func (e *CancellationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("cancelled: %v", e.Err)
	}
	return "cancelled"
}

// Unwrap exposes the underlying error.
func (e *CancellationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
