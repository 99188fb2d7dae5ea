package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a thread's ordered message log.
type Message struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
	Turn       int       `json:"turn"`
	CreatedAt  time.Time `json:"created_at"`
}

// Thread is a persisted conversation identified by an opaque id.
type Thread struct {
	ThreadID    string    `json:"thread_id"`
	CurrentTurn int       `json:"current_turn"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TurnAudit summarizes one completed turn for downstream consumers
// (metrics, audit topic).
type TurnAudit struct {
	ThreadID         string        `json:"thread_id"`
	Turn             int           `json:"turn"`
	Flow             FlowID        `json:"flow"`
	RecoveryAttempts int           `json:"recovery_attempts"`
	EventsEmitted    int           `json:"events_emitted"`
	EventsSuppressed int           `json:"events_suppressed"`
	ToolCalls        int           `json:"tool_calls"`
	Duration         time.Duration `json:"duration"`
	Ephemeral        bool          `json:"ephemeral"`
}
