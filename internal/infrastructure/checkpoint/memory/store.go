// Package memory holds checkpoints in process memory. Used in tests and
// in deployments that accept losing flow position on restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ ports.CheckpointStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{items: make(map[string][]byte)}
}

func (s *Store) Load(ctx context.Context, threadID string) (*domain.ConversationState, error) {
	s.mu.RLock()
	raw, ok := s.items[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNoCheckpoint
	}

	var state domain.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, domain.WrapError(domain.ErrNoCheckpoint, "decode checkpoint", err)
	}
	return &state, nil
}

func (s *Store) Save(ctx context.Context, threadID string, state *domain.ConversationState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items[threadID] = raw
	s.mu.Unlock()
	return nil
}
