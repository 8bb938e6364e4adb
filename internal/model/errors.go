package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderUnavailable signals a routing/optimizer provider that
	// could not be reached or kept failing after retries.
	ErrProviderUnavailable = errors.New("routing provider unavailable")

	// ErrCrossSegmentMove is returned when a stop move spans two
	// segments. Moves are only supported within one segment.
	ErrCrossSegmentMove = errors.New("cross-segment move unsupported")

	// ErrPersistenceConflict signals a lost optimistic-concurrency race
	// against a concurrent external writer.
	ErrPersistenceConflict = errors.New("persistence conflict")
)

// ProviderRejectedError is a non-transient provider refusal (4xx or a
// malformed response). Retrying the same payload will not help.
type ProviderRejectedError struct {
	Reason string
	Status int
}

func (e *ProviderRejectedError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider rejected request (status %d): %s", e.Status, e.Reason)
	}
	return "provider rejected request: " + e.Reason
}

// MissingDriverError reports every non-empty segment that lacks a
// driver assignment at commit time.
type MissingDriverError struct {
	SegmentKeys []string
}

func (e *MissingDriverError) Error() string {
	return "segments missing driver assignment: " + strings.Join(e.SegmentKeys, ", ")
}

// MalformedStopError flags a stop that cannot participate in routing,
// typically missing coordinates.
type MalformedStopError struct {
	StopID string
	Reason string
}

func (e *MalformedStopError) Error() string {
	return fmt.Sprintf("malformed stop %s: %s", e.StopID, e.Reason)
}

// PartialCommitError reports a commit where some route writes failed.
// Err is the first error encountered; Succeeded routes were persisted.
type PartialCommitError struct {
	Succeeded int
	Total     int
	Err       error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("committed %d of %d routes: %v", e.Succeeded, e.Total, e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
