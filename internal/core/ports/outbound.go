package ports

import (
	"context"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// ToolExecutor invokes a named remote operation against the analytics
// service. Remote failures of any kind arrive as error-status responses;
// the error return is reserved for misuse (empty name, nil context).
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]any) (domain.ToolResponse, error)
}

// LanguageModel is the pluggable model invocation abstraction.
type LanguageModel interface {
	// Invoke runs one completion over the request and returns text,
	// requested tool calls, or both.
	Invoke(ctx context.Context, req domain.ModelRequest) (*domain.ModelOutput, error)
	// Stream runs one completion, calling fn for each incremental chunk,
	// and returns the assembled output. fn returning an error stops the
	// stream.
	Stream(ctx context.Context, req domain.ModelRequest, fn func(domain.ModelChunk) error) (*domain.ModelOutput, error)
}

// CheckpointStore persists ConversationState snapshots keyed by thread id.
// Load returns domain.ErrNoCheckpoint for an unknown thread.
type CheckpointStore interface {
	Load(ctx context.Context, threadID string) (*domain.ConversationState, error)
	Save(ctx context.Context, threadID string, state *domain.ConversationState) error
}

// ThreadStore persists the per-thread message log.
type ThreadStore interface {
	EnsureThread(ctx context.Context, threadID string) (*domain.Thread, error)
	NextTurn(ctx context.Context, threadID string) (int, error)
	AppendMessage(ctx context.Context, message domain.Message) error
	ListRecentMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error)
}

// TurnAuditPublisher receives a summary of every completed turn.
// Implementations must be best-effort; the orchestrator ignores publish
// failures.
type TurnAuditPublisher interface {
	PublishTurnCompleted(ctx context.Context, audit domain.TurnAudit) error
}
