package model

import "errors"

// Per-candidate errors are contained at the candidate level and reported in
// aggregate; only ErrPersistence (and an exhausted top-level retry) aborts
// the action in progress.
var (
	// ErrExtraction means no usable JSON record could be pulled from a
	// model response. The candidate is dropped, the batch continues.
	ErrExtraction = errors.New("could not extract record from model output")

	// ErrDuplicate means a candidate collides with an existing table row
	// on normalized title or URL.
	ErrDuplicate = errors.New("candidate already present in table")

	// ErrIneligibleDeadline means the deadline has passed or could not be
	// parsed (unparseable deadlines fail closed).
	ErrIneligibleDeadline = errors.New("deadline passed or unparseable")

	// ErrAnnotation means rationale generation failed after retries; the
	// caller substitutes a placeholder instead of aborting.
	ErrAnnotation = errors.New("rationale generation failed")

	// ErrSourceExhausted means the source adapter could not meet the
	// requested minimum count within its attempt budget. The partial list
	// is still returned.
	ErrSourceExhausted = errors.New("source returned fewer candidates than requested")

	// ErrPersistence means a table write failed. Surfaced immediately;
	// silent data loss is unacceptable.
	ErrPersistence = errors.New("table persistence failed")
)
