package kv

import (
	"context"
	"errors"
	"os"
	"testing"
)

type settings struct {
	Volume  int    `json:"volume"`
	Quality string `json:"quality"`
}

// failingStore returns an error for every read
type failingStore struct {
	*MemoryStore
}

func (s *failingStore) GetRaw(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

var defaults = settings{Volume: 50, Quality: "high"}

func TestGet_MissingKeyReturnsDefault(t *testing.T) {
	s := NewMemoryStore()

	got := Get(context.Background(), s, "settings", defaults)
	if got != defaults {
		t.Errorf("expected default, got %+v", got)
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	want := settings{Volume: 10, Quality: "low"}
	if err := Set(ctx, s, "settings", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if got := Get(ctx, s, "settings", defaults); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGet_MalformedDataReturnsDefault(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"truncated json", `{"volume": 1`},
		{"wrong type", `{"volume": "loud"}`},
		{"not json", `undefined`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.SetRaw(ctx, "settings", tt.raw); err != nil {
				t.Fatalf("SetRaw failed: %v", err)
			}
			if got := Get(ctx, s, "settings", defaults); got != defaults {
				t.Errorf("expected default for %q, got %+v", tt.raw, got)
			}
		})
	}
}

func TestGet_BackendErrorReturnsDefault(t *testing.T) {
	s := &failingStore{MemoryStore: NewMemoryStore()}

	if got := Get(context.Background(), s, "best_score", 42); got != 42 {
		t.Errorf("expected default 42, got %d", got)
	}
}

func TestSet_EmptyKey(t *testing.T) {
	err := Set(context.Background(), NewMemoryStore(), "", 1)
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_ = Set(ctx, s, "k", 1)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, found, _ := s.GetRaw(ctx, "k"); found {
		t.Error("expected key to be gone")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, err := Open(context.Background(), Config{Backend: "etcd"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	s, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("expected memory store, got %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}
}

func TestRedisStore_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping redis test. Set REDIS_URL to run.")
	}
	ctx := context.Background()

	s, err := NewRedisStore(ctx, RedisConfig{URL: url, KeyPrefix: "runguard-test:"})
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer s.Close()
	defer s.Delete(ctx, "settings")

	want := settings{Volume: 7, Quality: "medium"}
	if err := Set(ctx, s, "settings", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := Get(ctx, s, "settings", defaults); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestPostgresStore_Live(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("Skipping postgres test. Set DATABASE_URL to run.")
	}
	ctx := context.Background()

	s, err := NewPostgresStore(ctx, PostgresConfig{URL: url})
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	defer s.Close()
	defer s.Delete(ctx, "settings")

	want := settings{Volume: 3, Quality: "low"}
	if err := Set(ctx, s, "settings", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	// Upsert path
	want.Volume = 4
	if err := Set(ctx, s, "settings", want); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}
	if got := Get(ctx, s, "settings", defaults); got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
