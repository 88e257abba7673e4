package query

import (
	"errors"
	"fmt"

	"github.com/tidemark/normstore/resource"
)

// NonUniqueError reports a single-resource query whose match set
// contained more than one identifier. This is a programming or data
// error; the resolving layer never silently picks one.
type NonUniqueError struct {
	QueryID string
	Matches []resource.Identifier
}

// Error implements the error interface.
func (e *NonUniqueError) Error() string {
	return fmt.Sprintf("NON_UNIQUE_RESULT: query %q matched %d records", e.QueryID, len(e.Matches))
}

// IsNonUnique returns true if the error is a non-unique-result error.
// Uses errors.As to handle wrapped errors.
func IsNonUnique(err error) bool {
	var ne *NonUniqueError
	return errors.As(err, &ne)
}
