package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

type badgerRecord struct {
	Key       string `badgerhold:"key"`
	Value     []byte
	UpdatedAt time.Time
}

// BadgerBackend keeps state in an embedded Badger database on local disk
type BadgerBackend struct {
	store *badgerhold.Store
}

// OpenBadger opens (or creates) the database directory at path
func OpenBadger(path string) (*BadgerBackend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerBackend{store: store}, nil
}

func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var rec badgerRecord
	err := b.store.Get(key, &rec)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return rec.Value, nil
}

func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte) error {
	rec := badgerRecord{Key: key, Value: value, UpdatedAt: time.Now()}
	if err := b.store.Upsert(key, &rec); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (b *BadgerBackend) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
