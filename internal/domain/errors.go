package domain

import "errors"

// Sentinel errors shared across the ingestion pipeline. Handlers map them to
// HTTP statuses with errors.Is; workers record the wrapped text on the job.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrExtractionFailed    = errors.New("extraction failed")
	ErrStorageFailed       = errors.New("storage failed")
	ErrPersistenceFailed   = errors.New("persistence failed")

	ErrJobNotFound       = errors.New("job not found")
	ErrNoJobs            = errors.New("no queued jobs")
	ErrInvalidTransition = errors.New("invalid job state transition")
	ErrVideoNotFound     = errors.New("video not found")
)
