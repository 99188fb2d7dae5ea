package domain

import "encoding/json"

// DataStatus tags every tool response with its data availability outcome.
type DataStatus string

const (
	StatusOK             DataStatus = "ok"
	StatusSuccess        DataStatus = "success"
	StatusNoData         DataStatus = "no_data"
	StatusNoDataInWindow DataStatus = "no_data_in_window"
	StatusError          DataStatus = "error"
)

// AvailableRange is the date window in which data actually exists for a
// logger, reported alongside no_data_in_window responses.
type AvailableRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ToolResponse is the tagged result of one remote tool invocation.
// Transport failures never surface here as Go errors; the executor
// converts them into an error-status response.
type ToolResponse struct {
	Status         DataStatus      `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	AvailableRange *AvailableRange `json:"availableRange,omitempty"`
	Message        string          `json:"message,omitempty"`
}

func (r ToolResponse) OK() bool {
	return r.Status == StatusOK || r.Status == StatusSuccess
}

// Recoverable reports whether the response should be routed to the
// recovery sub-machine rather than narrated as a plain failure.
func (r ToolResponse) Recoverable() bool {
	return r.Status == StatusNoData || r.Status == StatusNoDataInWindow
}

// ToolCall is one tool invocation requested by the language model.
// Kind distinguishes executable backend operations from UI pass-through
// actions so the routing decision is a total match on the enum, not a
// name comparison.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	Kind ActionKind     `json:"kind"`
}

// ToolSpec describes one tool offered to the language model.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Kind        ActionKind     `json:"kind"`
}

// ModelOutput is the parsed result of one language model invocation:
// a text completion, requested tool calls, or both.
type ModelOutput struct {
	Text      string
	ToolCalls []ToolCall
}

// ModelChunk is one increment of a streamed model response.
type ModelChunk struct {
	TextDelta string
	ToolCall  *ToolCall
}

// ModelRequest carries a message history plus the tool surface offered
// for this invocation.
type ModelRequest struct {
	Messages []Message
	Tools    []ToolSpec
}
