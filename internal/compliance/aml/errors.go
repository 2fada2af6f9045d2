package aml

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the engine. Callers match with errors.Is; the
// concrete error always carries a message with the offending id or value.
var (
	// ErrNotFound is returned when an activity id does not exist.
	ErrNotFound = errors.New("aml: activity not found")
	// ErrInvalidState is returned for illegal lifecycle transitions, including
	// a conditional write that lost a race to another writer.
	ErrInvalidState = errors.New("aml: invalid state")
	// ErrInvalidTransition is the InvalidState raised when a reviewer asks for a
	// move the status graph does not allow.
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed", ErrInvalidState)
	// ErrInvalidArgument is returned for malformed caller input.
	ErrInvalidArgument = errors.New("aml: invalid argument")
	// ErrTransientIO wraps storage, directory or trade reader failures. Safe to retry.
	ErrTransientIO = errors.New("aml: transient io failure")
	// ErrConfiguration is returned when thresholds fail validation at startup.
	ErrConfiguration = errors.New("aml: invalid configuration")
)
