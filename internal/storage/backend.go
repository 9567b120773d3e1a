// Package storage persists tracker state under a few well-known keys.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Well-known keys. Each is prefixed with the session namespace.
const (
	JobsKey           = "background_generations"
	NoticeKindsKey    = "generation_completed_kinds"
	NoticeSubjectsKey = "generation_completed_subjects"
)

var ErrNotFound = errors.New("key not found")

// Backend is a durable byte store addressed by key
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key builds the namespaced storage key for name
func Key(namespace, name string) string {
	if namespace == "" {
		namespace = "default"
	}
	return fmt.Sprintf("gentrack:%s:%s", namespace, name)
}
