package domain

import (
	"encoding/json"
	"strings"
)

// EventType enumerates the UI-facing events a turn may emit.
type EventType string

const (
	EventTextDelta  EventType = "text-delta"
	EventToolInput  EventType = "tool-input-available"
	EventToolOutput EventType = "tool-output-available"
)

// EmittedEvent is one entry of the ordered, deduplicated output stream
// produced per turn.
type EmittedEvent struct {
	Type       EventType       `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Args       map[string]any  `json:"args,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
}

// Key returns the identity used for deduplication: the tool call id for
// tool events, the exact trimmed text for text deltas. Input and output
// events of the same call keep distinct keys.
func (e EmittedEvent) Key() string {
	switch e.Type {
	case EventToolInput:
		return "in:" + e.ToolCallID
	case EventToolOutput:
		return "out:" + e.ToolCallID
	default:
		return "text:" + strings.TrimSpace(e.Text)
	}
}
