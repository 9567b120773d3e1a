// Package crosstab carries a best-effort "something is running" signal
// between agents that share a session. It never carries job details.
package crosstab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TypeStarted   = "generation_started"
	TypeCompleted = "generation_completed"
)

// Message is what travels on the channel. Origin lets an agent drop its own echo.
type Message struct {
	Type   string `json:"type"`
	Origin string `json:"origin,omitempty"`
}

// Bus is a named broadcast channel
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe delivers messages until ctx is cancelled, then closes the channel
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// RedisBus broadcasts over Redis pub/sub
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBus(client *redis.Client, channel string, logger *zap.Logger) *RedisBus {
	return &RedisBus{client: client, channel: channel, logger: logger.Named("crosstab")}
}

func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Message, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					b.logger.Debug("ignoring malformed message", zap.String("payload", m.Payload))
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// LocalBus fans messages out inside one process
type LocalBus struct {
	mu   sync.Mutex
	subs map[chan Message]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[chan Message]struct{})}
}

func (b *LocalBus) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- msg:
		default:
			// slow subscriber, drop
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, 16)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}
