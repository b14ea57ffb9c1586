package internalerr

import "errors"

// Sentinel errors for common cases
var (
	// ErrModelLoad indicates the classifier model artifact could not be
	// loaded or is corrupt. Fatal: the run aborts before any message.
	ErrModelLoad = errors.New("classifier model load failed")

	// ErrDegenerateKey indicates an extraction produced no usable dedup
	// key (no company name). Per-message: recorded and skipped.
	ErrDegenerateKey = errors.New("degenerate dedup key")

	// ErrConflict indicates a store write collided with a concurrent
	// writer on the same key. Resolved by retrying under the key lock,
	// never surfaced to callers of Upsert.
	ErrConflict = errors.New("store write conflict")

	// ErrIngestion indicates the mail adapter failed mid-sequence.
	// Terminal for the current run; persisted records remain valid.
	ErrIngestion = errors.New("adapter ingestion failed")

	// ErrInvalidInput indicates a caller handed the pipeline something
	// it cannot run with, such as a tracker wired without a classifier.
	ErrInvalidInput = errors.New("invalid input")
)
