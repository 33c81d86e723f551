package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	snapshotWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_writes_total",
			Help: "Total number of snapshot writes and deletes",
		},
		[]string{"kind", "op", "result"},
	)

	snapshotCorruptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_corruptions_total",
			Help: "Number of snapshots discarded because they failed to decode",
		},
		[]string{"kind"},
	)
)

// Slot is a typed view of a single snapshot key holding a JSON document.
type Slot[T any] struct {
	store Store
	key   string
	kind  string
}

// NewSlot binds a typed slot to key in s.
func NewSlot[T any](s Store, key string) *Slot[T] {
	_, kind, ok := ParseKey(key)
	if !ok {
		kind = "unknown"
	}
	return &Slot[T]{store: s, key: key, kind: kind}
}

// Key returns the snapshot key.
func (s *Slot[T]) Key() string {
	return s.key
}

// Load decodes the snapshot. found is false when no snapshot exists.
// A snapshot that fails to decode yields ErrCorruptSnapshot.
func (s *Slot[T]) Load(ctx context.Context) (value T, found bool, err error) {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return value, false, nil
		}
		return value, false, fmt.Errorf("load %s: %w", s.key, err)
	}

	if err := json.Unmarshal(raw, &value); err != nil {
		var zero T
		return zero, false, fmt.Errorf("load %s: %w: %v", s.key, ErrCorruptSnapshot, err)
	}
	return value, true, nil
}

// LoadOrReset behaves like Load but never fails: a corrupt snapshot is
// deleted and reported as absent, and read errors are reported as absent.
func (s *Slot[T]) LoadOrReset(ctx context.Context, logger *zap.Logger) (T, bool) {
	value, found, err := s.Load(ctx)
	if err == nil {
		return value, found
	}

	var zero T
	if errors.Is(err, ErrCorruptSnapshot) {
		snapshotCorruptionsTotal.WithLabelValues(s.kind).Inc()
		logger.Warn("discarding corrupt snapshot", zap.String("key", s.key), zap.Error(err))
		if delErr := s.Clear(ctx); delErr != nil {
			logger.Warn("deleting corrupt snapshot", zap.String("key", s.key), zap.Error(delErr))
		}
		return zero, false
	}

	logger.Warn("reading snapshot", zap.String("key", s.key), zap.Error(err))
	return zero, false
}

// Save encodes value and replaces the snapshot.
func (s *Slot[T]) Save(ctx context.Context, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		snapshotWritesTotal.WithLabelValues(s.kind, "save", "error").Inc()
		return fmt.Errorf("save %s: encoding: %w", s.key, err)
	}

	if err := s.store.Set(ctx, s.key, raw); err != nil {
		snapshotWritesTotal.WithLabelValues(s.kind, "save", "error").Inc()
		return fmt.Errorf("save %s: %w", s.key, err)
	}

	snapshotWritesTotal.WithLabelValues(s.kind, "save", "ok").Inc()
	return nil
}

// Clear deletes the snapshot.
func (s *Slot[T]) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, s.key); err != nil {
		snapshotWritesTotal.WithLabelValues(s.kind, "delete", "error").Inc()
		return fmt.Errorf("clear %s: %w", s.key, err)
	}

	snapshotWritesTotal.WithLabelValues(s.kind, "delete", "ok").Inc()
	return nil
}
