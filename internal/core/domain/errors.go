package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownService    = errors.New("unknown service")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrEntitiesNotLoaded = errors.New("no source entity is available")
)

// ValidationError is returned by service calls with out-of-range or missing
// parameters. Its message is shown to the caller.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
