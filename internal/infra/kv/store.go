// Package kv persists small host state as text values under string keys.
// Reads are defensive: a missing key, a backend error or malformed data
// yields the caller's default instead of an error.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/runguard/internal/stability/metrics"
)

// ErrEmptyKey is returned when a key is empty.
var ErrEmptyKey = errors.New("empty key")

// Store is a text key/value backend.
type Store interface {
	// GetRaw returns the stored text and whether the key exists.
	GetRaw(ctx context.Context, key string) (string, bool, error)

	// SetRaw stores value under key, replacing any previous value.
	SetRaw(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Get decodes the JSON value stored under key. Any failure degrades to def.
func Get[T any](ctx context.Context, s Store, key string, def T) T {
	raw, found, err := s.GetRaw(ctx, key)
	if err != nil {
		metrics.KVDecodeFailures.WithLabelValues("backend").Inc()
		slog.Warn("Failed to read persisted value, using default", "key", key, "error", err)
		return def
	}
	if !found {
		return def
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		metrics.KVDecodeFailures.WithLabelValues("malformed").Inc()
		slog.Warn("Malformed persisted value, using default", "key", key, "error", err)
		return def
	}
	return v
}

// Set encodes v as JSON and stores it under key.
func Set[T any](ctx context.Context, s Store, key string, v T) error {
	if key == "" {
		return ErrEmptyKey
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode value for %s: %w", key, err)
	}
	if err := s.SetRaw(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
