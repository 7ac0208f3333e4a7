package domain

import "time"

// FailureReason explains why a resilient load did not succeed.
type FailureReason string

const (
	ReasonExhaustedRetries FailureReason = "exhausted-retries"
	ReasonCanceled         FailureReason = "canceled"
)

// LoadAttempt describes one try of a resilient load.
type LoadAttempt struct {
	URI     string
	Ordinal int           // 1..MaxAttempts
	Delay   time.Duration // wait applied before this attempt
	Err     error         // nil on success
	Elapsed time.Duration
}

// LoadResult is the discriminated outcome of a resilient load.
type LoadResult struct {
	URI      string
	OK       bool
	Reason   FailureReason
	Attempts int
	Err      error // last underlying error when !OK
}
