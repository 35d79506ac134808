package job

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned when no job exists with the requested id
var ErrJobNotFound = errors.New("job not found")

// ErrStore marks persistence-layer failures so callers can surface
// them as server errors rather than client errors.
var ErrStore = errors.New("store failure")

// ValidationError reports bad or missing input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
