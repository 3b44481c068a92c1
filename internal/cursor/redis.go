package cursor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisKeyPrefix = "relay:cursor:"

// RedisAPI is the subset of redis.Cmdable used by RedisStore.
type RedisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the cursor as a string value under relay:cursor:<channel>.
// A single SET replaces the value atomically.
type RedisStore struct {
	client  RedisAPI
	channel string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore for channel.
func NewRedisStore(client RedisAPI, channel string) *RedisStore {
	return &RedisStore{client: client, channel: channel}
}

func (s *RedisStore) key() string { return redisKeyPrefix + s.channel }

func (s *RedisStore) Load(ctx context.Context) (Cursor, error) {
	val, err := s.client.Get(ctx, s.key()).Result()
	if errors.Is(err, redis.Nil) {
		log.Debug().Str("key", s.key()).Msg("No cursor key, starting from 0")
		return Cursor{}, nil
	}
	if err != nil {
		return Cursor{}, fmt.Errorf("redis GET %s: %w", s.key(), err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("parse cursor %s: %w", s.key(), err)
	}
	return Cursor{LastMessageID: id}, nil
}

func (s *RedisStore) Save(ctx context.Context, c Cursor) error {
	if err := s.client.Set(ctx, s.key(), strconv.FormatInt(c.LastMessageID, 10), 0).Err(); err != nil {
		return &PersistError{Backend: "redis", Cursor: c, Err: fmt.Errorf("redis SET %s: %w", s.key(), err)}
	}
	log.Debug().Str("key", s.key()).Int64("lastMessageId", c.LastMessageID).Msg("Cursor saved")
	return nil
}
