package filestore

import (
	"errors"
	"fmt"
)

// Standard errors returned by the filestore package.
var (
	// ErrNotOpen indicates the document is not open.
	ErrNotOpen = errors.New("document not open")

	// ErrBinaryFile indicates the file appears to be binary.
	ErrBinaryFile = errors.New("binary file")

	// ErrNoConflict indicates there is no open conflict to resolve.
	ErrNoConflict = errors.New("no conflict to resolve")

	// ErrNoRecovery indicates there is no recovery prompt open.
	ErrNoRecovery = errors.New("no recovery pending")
)

// PathError represents an error associated with a file path.
type PathError struct {
	Op   string // Operation that failed (open, read, write)
	Path string // File path
	Err  error  // Underlying error
}

// Error implements the error interface.
func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *PathError) Unwrap() error {
	return e.Err
}
