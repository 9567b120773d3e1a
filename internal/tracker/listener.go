package tracker

import (
	"context"

	"github.com/makeasinger/gentrack/internal/model"
)

// Change describes one registry mutation. Jobs is the full snapshot after it.
type Change struct {
	Updated []model.Job
	Removed []string
	Jobs    []model.Job
}

// Listener is told about every change, in order, outside the registry lock.
// Implementations must not block for long.
type Listener interface {
	Changed(ctx context.Context, c Change)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(ctx context.Context, c Change)

func (f ListenerFunc) Changed(ctx context.Context, c Change) { f(ctx, c) }

// RemoteSignal reports whether another agent of the session has something running
type RemoteSignal interface {
	RemoteRunning() bool
}

// Processing reports whether any job in jobs is still processing
func Processing(jobs []model.Job) bool {
	for _, j := range jobs {
		if j.Status == model.JobStatusProcessing {
			return true
		}
	}
	return false
}
