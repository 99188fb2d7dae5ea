package domain

// SuggestionPriority orders follow-up suggestions in the UI.
type SuggestionPriority string

const (
	PriorityUrgent      SuggestionPriority = "urgent"
	PriorityRecommended SuggestionPriority = "recommended"
	PrioritySuggested   SuggestionPriority = "suggested"
	PriorityOptional    SuggestionPriority = "optional"
)

// Suggestion is one recommended follow-up action attached to a render.
type Suggestion struct {
	Action   string             `json:"action"`
	Reason   string             `json:"reason"`
	Priority SuggestionPriority `json:"priority"`
	ToolHint string             `json:"tool_hint,omitempty"`
	Params   map[string]any     `json:"params,omitempty"`
}

// ToolHint is the structured context envelope a tool may attach to its
// result. A nil NextSteps slice means the tool gave no hint and the
// caller falls back to heuristics; an empty non-nil slice is an explicit
// "no suggestions".
type ToolHint struct {
	Summary   string       `json:"summary,omitempty"`
	Alert     string       `json:"alert,omitempty"`
	NextSteps []Suggestion `json:"next_steps"`
}
