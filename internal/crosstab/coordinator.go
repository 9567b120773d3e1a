package crosstab

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/makeasinger/gentrack/internal/tracker"
)

// Coordinator announces this agent's running state and remembers the last
// state announced by any other agent.
type Coordinator struct {
	bus    Bus
	origin string
	logger *zap.Logger
	// a "started" older than this is ignored; peers fail any job past the hard timeout
	staleAfter time.Duration
	now        func() time.Time

	mu            sync.Mutex
	localRunning  bool
	remoteRunning bool
	remoteAt      time.Time
}

// NewCoordinator creates a coordinator. staleAfter <= 0 keeps remote signals forever.
func NewCoordinator(bus Bus, origin string, staleAfter time.Duration, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		bus:        bus,
		origin:     origin,
		logger:     logger.Named("crosstab"),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Changed implements tracker.Listener
func (c *Coordinator) Changed(ctx context.Context, change tracker.Change) {
	c.SetLocalRunning(ctx, tracker.Processing(change.Jobs))
}

// SetLocalRunning publishes when the local state flips
func (c *Coordinator) SetLocalRunning(ctx context.Context, running bool) {
	c.mu.Lock()
	if c.localRunning == running {
		c.mu.Unlock()
		return
	}
	c.localRunning = running
	c.mu.Unlock()

	msg := Message{Type: TypeCompleted, Origin: c.origin}
	if running {
		msg.Type = TypeStarted
	}
	if err := c.bus.Publish(ctx, msg); err != nil {
		c.logger.Warn("failed to broadcast running state", zap.String("type", msg.Type), zap.Error(err))
	}
}

// RemoteRunning implements tracker.RemoteSignal
func (c *Coordinator) RemoteRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteRunning {
		return false
	}
	return c.staleAfter <= 0 || c.now().Sub(c.remoteAt) < c.staleAfter
}

// Run folds incoming signals until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) error {
	msgs, err := c.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for msg := range msgs {
		if msg.Origin == c.origin {
			continue
		}
		switch msg.Type {
		case TypeStarted, TypeCompleted:
			c.mu.Lock()
			c.remoteRunning = msg.Type == TypeStarted
			c.remoteAt = c.now()
			c.mu.Unlock()
			c.logger.Debug("remote signal", zap.String("type", msg.Type), zap.String("origin", msg.Origin))
		}
	}
	return nil
}
