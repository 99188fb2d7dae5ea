// Package redis persists conversation checkpoints in Redis with a TTL,
// so an idle thread eventually forgets its flow position.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

const keyPrefix = "copilot:checkpoint:"

type Store struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ ports.CheckpointStore = (*Store)(nil)

func NewStore(client redis.Cmdable, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

// Connect dials Redis and verifies the connection with a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

func (s *Store) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	raw, err := s.client.Get(ctx, keyPrefix+threadID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.WrapError(domain.ErrNoCheckpoint, "load checkpoint", err)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}

	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		// A corrupt checkpoint is unrecoverable; treat it as absent so
		// the turn starts from a fresh state instead of failing.
		return nil, domain.WrapError(domain.ErrNoCheckpoint, "decode checkpoint", err)
	}
	return &state, nil
}

func (s *Store) Save(ctx context.Context, threadID string, state *domain.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", threadID, err)
	}
	if err := s.client.Set(ctx, keyPrefix+threadID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", threadID, err)
	}
	return nil
}
