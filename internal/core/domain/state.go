package domain

import "time"

// FlowID identifies one deterministic workflow, or the fallback loop.
type FlowID string

const (
	FlowFleetBriefing    FlowID = "fleet_briefing"
	FlowFinancialReport  FlowID = "financial_report"
	FlowPerformanceAudit FlowID = "performance_audit"
	FlowHealthCheck      FlowID = "health_check"
	FlowGreeting         FlowID = "greeting"
	FlowFreeChat         FlowID = "free_chat"
)

// ParseFlowID validates a router classification token.
func ParseFlowID(raw string) (FlowID, bool) {
	switch FlowID(raw) {
	case FlowFleetBriefing, FlowFinancialReport, FlowPerformanceAudit,
		FlowHealthCheck, FlowGreeting, FlowFreeChat:
		return FlowID(raw), true
	}
	return "", false
}

// FleetSnapshot is a point-in-time picture of fleet health kept across
// turns so a later briefing can narrate "compared to last time".
type FleetSnapshot struct {
	TakenAt        time.Time `json:"taken_at"`
	TotalLoggers   int       `json:"total_loggers"`
	ActiveLoggers  int       `json:"active_loggers"`
	PercentOnline  float64   `json:"percent_online"`
	TodayEnergyKwh float64   `json:"today_energy_kwh"`
}

// FlowContext carries the working data of the active flow plus a small
// set of persistent fields that survive flow changes and turns.
type FlowContext struct {
	// Flow-specific fields, cleared on flow completion or flow change.
	LoggerIDs        []string                `json:"logger_ids,omitempty"`
	Date             string                  `json:"date,omitempty"`
	DateStart        string                  `json:"date_start,omitempty"`
	DateEnd          string                  `json:"date_end,omitempty"`
	Metric           string                  `json:"metric,omitempty"`
	ToolResults      map[string]ToolResponse `json:"tool_results,omitempty"`
	NeedsRecovery    bool                    `json:"needs_recovery,omitempty"`
	AvailableRange   *AvailableRange         `json:"available_range,omitempty"`
	FailedTool       string                  `json:"failed_tool,omitempty"`
	FailedLoggerID   string                  `json:"failed_logger_id,omitempty"`
	CurrentPromptArg string                  `json:"current_prompt_arg,omitempty"`
	WaitingForInput  bool                    `json:"waiting_for_input,omitempty"`
	ExtractedArgs    map[string]string       `json:"extracted_args,omitempty"`

	// Persistent fields, never cleared implicitly.
	Locale             string         `json:"locale,omitempty"`
	Timezone           string         `json:"timezone,omitempty"`
	ElectricityRate    float64        `json:"electricity_rate,omitempty"`
	PriorFleetSnapshot *FleetSnapshot `json:"prior_fleet_snapshot,omitempty"`
	NarrativeStyle     string         `json:"narrative_style,omitempty"`
}

// ResetFlowFields clears the flow-specific portion of the context.
// Persistent fields are untouched.
func (c *FlowContext) ResetFlowFields() {
	c.LoggerIDs = nil
	c.Date = ""
	c.DateStart = ""
	c.DateEnd = ""
	c.Metric = ""
	c.ToolResults = nil
	c.NeedsRecovery = false
	c.AvailableRange = nil
	c.FailedTool = ""
	c.FailedLoggerID = ""
	c.CurrentPromptArg = ""
	c.WaitingForInput = false
	c.ExtractedArgs = nil
}

// RecordToolResult caches one tool response under its tool name for
// later steps and for the recovery sub-machine.
func (c *FlowContext) RecordToolResult(name string, resp ToolResponse) {
	if c.ToolResults == nil {
		c.ToolResults = make(map[string]ToolResponse)
	}
	c.ToolResults[name] = resp
}

func (c *FlowContext) ToolResult(name string) (ToolResponse, bool) {
	resp, ok := c.ToolResults[name]
	return resp, ok
}

// MaxRecoveryAttempts is the last attempt number at which the recovery
// sub-machine may still issue a new prompt. The invocation that would
// push the counter past this bound produces a terminal "recovery
// exhausted" message instead, so the persisted counter never exceeds
// MaxRecoveryAttempts+1.
const MaxRecoveryAttempts = 3

// ConversationState is the checkpointed per-thread state restored at
// the start of each turn. It is owned exclusively by the orchestrator
// for the duration of a turn.
type ConversationState struct {
	ActiveFlow       FlowID      `json:"active_flow,omitempty"`
	FlowStep         int         `json:"flow_step"`
	Flow             FlowContext `json:"flow"`
	RecoveryAttempts int         `json:"recovery_attempts"`
	PendingActions   []UIAction  `json:"pending_actions,omitempty"`
}

// NewConversationState returns an empty state for a fresh thread.
func NewConversationState() *ConversationState {
	return &ConversationState{}
}
