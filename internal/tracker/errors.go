package tracker

import "errors"

var (
	// ErrAtCapacity is returned by Register when the concurrency ceiling is reached.
	// Callers are expected to check Blocked first and surface their own message.
	ErrAtCapacity = errors.New("concurrency ceiling reached")
	// ErrUnknownKind is returned by Register for a kind outside the closed set
	ErrUnknownKind = errors.New("unknown job kind")
	// ErrJobNotFound is used by callers that need an error for a missing job
	ErrJobNotFound = errors.New("job not found")
)

// expiredMessage is the error text of a job forced to failed by the hard timeout
const expiredMessage = "Generation expired before the worker reported a result"
