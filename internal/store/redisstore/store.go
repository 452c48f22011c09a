package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store holds the per-conversation send locks. A lock only prevents two
// concurrent sends from interleaving one conversation's history; it is
// best-effort and expires on its own if a process dies mid-send.
type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

const sendLockPrefix = "minchat:sendlock:"

// AcquireSendLock returns false when another send already holds the
// conversation.
func (s *Store) AcquireSendLock(ctx context.Context, conversationID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, sendLockPrefix+conversationID, 1, ttl).Result()
}

func (s *Store) ReleaseSendLock(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, sendLockPrefix+conversationID).Err()
}
