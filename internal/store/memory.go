package store

import (
	"context"
	"fmt"
	"sync"
)

const watchBuffer = 64

// MemoryStore implements Store and Watcher with in-memory storage.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte

	subMu       sync.Mutex
	subscribers map[chan Change]struct{}
}

// NewMemoryStore creates a new MemoryStore instance.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string][]byte),
		subscribers: make(map[chan Change]struct{}),
	}
}

// Get returns the snapshot stored at key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("get snapshot: %w", ctx.Err())
	default:
	}

	if err := checkKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.snapshots[key]
	if !exists {
		return nil, ErrNotFound
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set replaces the snapshot stored at key.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("set snapshot: %w", ctx.Err())
	default:
	}

	if err := checkKey(key); err != nil {
		return err
	}
	if value == nil {
		return ErrNilValue
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.snapshots[key] = stored
	s.mu.Unlock()

	s.notify(Change{Key: key})
	return nil
}

// Delete removes the snapshot stored at key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("delete snapshot: %w", ctx.Err())
	default:
	}

	if err := checkKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	_, existed := s.snapshots[key]
	delete(s.snapshots, key)
	s.mu.Unlock()

	if existed {
		s.notify(Change{Key: key, Deleted: true})
	}
	return nil
}

// Watch streams every change made through this store until ctx is done.
func (s *MemoryStore) Watch(ctx context.Context) (<-chan Change, error) {
	ch := make(chan Change, watchBuffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	go func() {
		<-ctx.Done()
		s.subMu.Lock()
		delete(s.subscribers, ch)
		close(ch)
		s.subMu.Unlock()
	}()

	return ch, nil
}

// notify delivers a change to every subscriber. Slow subscribers miss
// changes rather than block writers.
func (s *MemoryStore) notify(change Change) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for ch := range s.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}
