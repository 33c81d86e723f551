package main

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/storefront-state/internal/config"
	"github.com/vyrodovalexey/storefront-state/internal/store"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
	}{
		{"debug level", "debug", false},
		{"info level", "info", false},
		{"warn level", "warn", false},
		{"error level", "error", false},
		{"invalid level defaults to info", "invalid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			logger, err := initLogger(tt.level)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("initLogger() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("initLogger() error = %v", err)
			}
			if logger == nil {
				t.Error("initLogger() returned nil logger")
			}
		})
	}
}

func TestOpenSnapshots(t *testing.T) {
	tests := []struct {
		name        string
		backend     string
		wantErr     bool
		wantWatcher bool
	}{
		{"memory backend", config.BackendMemory, false, true},
		{"empty backend defaults to memory", "", false, true},
		{"file backend", config.BackendFile, false, false},
		{"unknown backend", "etcd", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			cfg := &config.Config{
				SnapshotBackend: tt.backend,
				SnapshotDir:     t.TempDir(),
			}

			// Act
			snapshots, closeFn, err := openSnapshots(context.Background(), cfg, zap.NewNop())

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Error("openSnapshots() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("openSnapshots() error = %v", err)
			}
			if snapshots == nil {
				t.Fatal("openSnapshots() returned nil store")
			}
			if _, ok := snapshots.(store.Watcher); ok != tt.wantWatcher {
				t.Errorf("store is Watcher = %v, want %v", ok, tt.wantWatcher)
			}
			if err := closeFn(); err != nil {
				t.Errorf("close error = %v", err)
			}
		})
	}
}

func TestOpenSnapshots_RedisUnreachable(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		SnapshotBackend: config.BackendRedis,
		RedisAddr:       "127.0.0.1:1",
	}

	// Act
	_, _, err := openSnapshots(context.Background(), cfg, zap.NewNop())

	// Assert
	if err == nil {
		t.Error("openSnapshots() expected error for unreachable redis")
	}
}

type pingStore struct {
	store.Store
	err error
}

func (p pingStore) Ping(context.Context) error { return p.err }

func TestReadinessCheck(t *testing.T) {
	// Memory stores have nothing to ping.
	if check := readinessCheck(store.NewMemoryStore()); check != nil {
		t.Error("readinessCheck() should be nil for stores without Ping")
	}

	wantErr := errors.New("connection refused")
	check := readinessCheck(pingStore{Store: store.NewMemoryStore(), err: wantErr})
	if check == nil {
		t.Fatal("readinessCheck() should use the store's Ping")
	}
	if err := check(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("check() error = %v, want %v", err, wantErr)
	}
}
