package models

import (
	"errors"
	"fmt"
)

// ErrNoValidRows is returned by a normalizer whose input yielded nothing usable.
var ErrNoValidRows = errors.New("no valid rows produced")

// MissingInputError means fewer files matched a series than a stage requires.
type MissingInputError struct {
	Dir      string
	Pattern  string
	Found    int
	Required int
}

func (e *MissingInputError) Error() string {
	if e.Found == 0 {
		return fmt.Sprintf("missing input: no files matching %s in %s", e.Pattern, e.Dir)
	}
	return fmt.Sprintf("missing input: found %d files matching %s in %s, need at least %d",
		e.Found, e.Pattern, e.Dir, e.Required)
}

// SchemaShapeError means a file exists but its top-level shape is not a
// recognized variant.
type SchemaShapeError struct {
	File   string
	Reason string
}

func (e *SchemaShapeError) Error() string {
	return fmt.Sprintf("unrecognized schema in %s: %s", e.File, e.Reason)
}
