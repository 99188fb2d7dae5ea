package ports

import (
	"context"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// TurnService is the inbound contract for running one conversation turn.
// The returned channel is the ordered, deduplicated event stream for the
// turn; it is closed when the turn completes or the consumer's context
// is cancelled. An empty threadID runs the turn without cross-turn
// persistence.
type TurnService interface {
	RunTurn(ctx context.Context, threadID string, messages []domain.Message) (<-chan domain.EmittedEvent, error)
}
