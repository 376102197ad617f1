package dataset

import "errors"

// ErrColumnNotFound reports that an operation asked for a column the table
// does not carry. Page-level consumers treat it as "skip this chart", not as
// a hard failure.
var ErrColumnNotFound = errors.New("column not found")
