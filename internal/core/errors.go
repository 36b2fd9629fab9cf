package core

import (
	"fmt"

	"communitycore/pkg/domain"
)

// ValidationError reports the first violated constraint for a create or
// update payload. It is detected before any store mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ErrNotFound is returned when a point lookup or referential check fails.
type ErrNotFound struct {
	Entity domain.EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
