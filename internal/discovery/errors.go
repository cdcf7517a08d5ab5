package discovery

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the pipeline error taxonomy. Per-item and per-source
// errors are contained at their origin; only ErrPipelineFatal may abort a run.
var (
	// ErrSourceUnavailable marks a transient network or HTTP-layer failure.
	// The guard retries these with backoff.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAuthExpired marks an invalid session or credential. Fatal for the
	// source's run, never retried; other sources are unaffected.
	ErrAuthExpired = errors.New("source auth expired")

	// ErrCircuitOpen is returned by the guard once a source tripped its
	// consecutive-failure threshold for the remainder of the run.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrPipelineFatal marks conditions affecting the pipeline itself, such
	// as unreachable checkpoint or index storage.
	ErrPipelineFatal = errors.New("pipeline fatal")
)

// ParseError marks one malformed item within an otherwise healthy page. The
// adapter skips the item and continues pagination.
type ParseError struct {
	SourceID string
	Item     string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s item %q: %v", e.SourceID, e.Item, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Unavailable wraps err as a transient source failure.
func Unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}

// Fatal wraps err as a pipeline-fatal condition.
func Fatal(err error) error {
	return fmt.Errorf("%w: %w", ErrPipelineFatal, err)
}
