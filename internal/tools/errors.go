package tools

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolUnavailable is returned when a call targets a tool that is not
// in the registry. The agent loop treats it as a no-op rather than a
// failure.
type ErrToolUnavailable struct {
	ToolName string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// ArgumentError reports arguments that are unparsable, miss a required
// field, or violate the tool's schema.
type ArgumentError struct {
	Tool     Name
	Problems []string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

type domainError struct {
	err error
}

func (e *domainError) Error() string { return e.err.Error() }
func (e *domainError) Unwrap() error { return e.err }

// DomainError marks err as a failure the model should hear about (a
// missing record, a rejected value) rather than one that aborts the run.
// It returns nil for a nil err.
func DomainError(err error) error {
	if err == nil {
		return nil
	}
	return &domainError{err: err}
}

// IsDomainError reports whether err, or anything it wraps, is an
// [ArgumentError] or was marked with [DomainError].
func IsDomainError(err error) bool {
	var ae *ArgumentError
	if errors.As(err, &ae) {
		return true
	}
	var de *domainError
	return errors.As(err, &de)
}
