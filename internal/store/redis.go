package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ChangesChannel is the pub/sub channel carrying snapshot changes.
const ChangesChannel = keyNamespace + ":changes"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Del(context.Context, ...string) *redis.IntCmd
	Publish(context.Context, string, any) *redis.IntCmd
}

// RedisOptions configures the redis snapshot backend.
type RedisOptions struct {
	URL      string
	Addr     string
	Password string
	DB       int
}

// RedisStore implements Store and Watcher on redis. Writes are announced on
// ChangesChannel so every server instance sharing the redis converges.
type RedisStore struct {
	cmd    cmdable
	raw    *redis.Client
	logger *zap.Logger
}

// NewRedisStore connects to redis and verifies connectivity.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*RedisStore, error) {
	redisOpts, err := redisOptions(opts)
	if err != nil {
		return nil, err
	}

	raw := redis.NewClient(redisOpts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{cmd: raw, raw: raw, logger: logger}, nil
}

func redisOptions(opts RedisOptions) (*redis.Options, error) {
	if opts.URL == "" && opts.Addr == "" {
		return nil, errors.New("redis url or address is required")
	}
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		if parsed.DB == 0 {
			parsed.DB = opts.DB
		}
		return parsed, nil
	}
	return &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}

// Get returns the snapshot stored at key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	value, err := s.cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return value, nil
}

// Set replaces the snapshot stored at key and announces the change.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == nil {
		return ErrNilValue
	}

	if err := s.cmd.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set snapshot: %w", err)
	}
	s.publish(ctx, Change{Key: key})
	return nil
}

// Delete removes the snapshot stored at key and announces the change.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	removed, err := s.cmd.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if removed > 0 {
		s.publish(ctx, Change{Key: key, Deleted: true})
	}
	return nil
}

// Watch subscribes to ChangesChannel until ctx is done.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Change, error) {
	if s.raw == nil {
		return nil, errors.New("redis client not initialized")
	}

	pubsub := s.raw.Subscribe(ctx, ChangesChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", ChangesChannel, err)
	}

	out := make(chan Change, watchBuffer)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					s.logger.Warn("dropping malformed snapshot change", zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Ping verifies the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.cmd.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (s *RedisStore) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

// publish announces a change. Announcement failures are logged, not returned.
func (s *RedisStore) publish(ctx context.Context, change Change) {
	payload, err := json.Marshal(change)
	if err != nil {
		s.logger.Warn("encoding snapshot change", zap.Error(err))
		return
	}
	if err := s.cmd.Publish(ctx, ChangesChannel, payload).Err(); err != nil {
		s.logger.Warn("publishing snapshot change",
			zap.String("key", change.Key),
			zap.Error(err),
		)
	}
}
