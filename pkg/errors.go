package snemo

import "fmt"

// ErrOpenFile represents an error when opening a file.
type ErrOpenFile struct {
	Filename string
	Err      error
}

func (e *ErrOpenFile) Error() string {
	return fmt.Sprintf("error opening file %q: %v", e.Filename, e.Err)
}

func (e *ErrOpenFile) Unwrap() error {
	return e.Err
}

// ConfigurationError is raised at initialization for invalid or contradictory
// setup values. It is fatal for the run.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %q: %s", e.Key, e.Reason)
}

// GeometryMismatch represents a hit whose geometry id is not a known cell or
// block.
type GeometryMismatch struct {
	GeomID GeomID
	Reason string
}

func (e *GeometryMismatch) Error() string {
	return fmt.Sprintf("geometry mismatch for %s: %s", e.GeomID, e.Reason)
}

// InvalidInputData marks an event that fails a consistency check. The event
// is skipped, the run continues.
type InvalidInputData struct {
	EventID int
	Reason  string
}

func (e *InvalidInputData) Error() string {
	return fmt.Sprintf("invalid input data in event %d: %s", e.EventID, e.Reason)
}

// InvariantViolation signals an internal bug, never bad input.
type InvariantViolation struct {
	Where  string
	Reason string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Where, e.Reason)
}

// ErrMemoryFormat represents a malformed memory table file.
type ErrMemoryFormat struct {
	Line   int
	Reason string
}

func (e *ErrMemoryFormat) Error() string {
	return fmt.Sprintf("memory format error at line %d: %s", e.Line, e.Reason)
}
