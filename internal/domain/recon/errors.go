package recon

import (
	"errors"
	"fmt"
)

// ErrEmptyValue marks a finding value that normalized to nothing; parsers
// skip these instead of failing.
var ErrEmptyValue = errors.New("empty value")

// ErrNotFound is returned when a scan or target has no stored report.
// Storage adapters translate their driver's miss into this one.
var ErrNotFound = errors.New("not found")

// ValidationError rejects bad input before any subprocess is spawned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ResourceError means an invocation could not be spawned at all,
// typically because the tool binary is not installed.
type ResourceError struct {
	Tool   Tool
	Binary string
	Err    error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("tool %s: binary %q not available: %v", e.Tool, e.Binary, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// ParseWarning means tool output was consumed but unparsable or partial.
// Findings extracted before the trouble are kept.
type ParseWarning struct {
	Tool   Tool
	Reason string
}

func (e *ParseWarning) Error() string {
	return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
}
