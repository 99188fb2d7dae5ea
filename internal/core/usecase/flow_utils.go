package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// Analytics service tool names.
const (
	toolListLoggers        = "list_loggers"
	toolFleetOverview      = "get_fleet_overview"
	toolAnalyzeHealth      = "analyze_inverter_health"
	toolPowerCurve         = "get_power_curve"
	toolCompareLoggers     = "compare_loggers"
	toolFinancialSavings   = "calculate_financial_savings"
	toolForecastProduction = "forecast_production"
	toolDiagnoseErrors     = "diagnose_error_codes"
	toolPerformanceRatio   = "calculate_performance_ratio"
)

func newCallID() string {
	return uuid.NewString()
}

// execTool invokes one analytics tool, emitting the call and its result
// as events and recording both in the flow context and the turn's
// message log. A transport failure from the executor is converted into
// an error-status response here; it never propagates as a Go error.
func (run *flowRun) execTool(ctx context.Context, name string, args map[string]any) domain.ToolResponse {
	return run.execToolWithID(ctx, newCallID(), name, args)
}

func (run *flowRun) execToolWithID(ctx context.Context, callID, name string, args map[string]any) domain.ToolResponse {
	run.sink.emit(domain.EmittedEvent{
		Type:       domain.EventToolInput,
		ToolCallID: callID,
		ToolName:   name,
		Args:       args,
	})

	resp, err := run.deps.tools.Execute(ctx, name, args)
	if err != nil {
		slog.Warn("tool_execute_failed", "tool", name, "error", err)
		resp = domain.ToolResponse{
			Status:  domain.StatusError,
			Message: "The analytics service could not be reached.",
		}
	}
	run.toolCalls++
	run.state.Flow.RecordToolResult(name, resp)

	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		payload = []byte(`{"status":"error"}`)
	}
	run.sink.emit(domain.EmittedEvent{
		Type:       domain.EventToolOutput,
		ToolCallID: callID,
		ToolName:   name,
		Output:     payload,
	})
	run.produced = append(run.produced, domain.Message{
		ID:         uuid.NewString(),
		ThreadID:   run.threadID,
		Role:       domain.RoleTool,
		Content:    string(payload),
		ToolName:   name,
		ToolCallID: callID,
		Turn:       run.turn,
		CreatedAt:  time.Now().UTC(),
	})
	return resp
}

// emitText emits one text delta and records it for persistence. Empty
// text after trimming is dropped.
func (run *flowRun) emitText(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	run.sink.emit(domain.EmittedEvent{Type: domain.EventTextDelta, Text: text})
	run.assistantText = append(run.assistantText, text)
}

// emitAction emits a UI pass-through action as a tool-input event. The
// action is never sent to the tool executor.
func (run *flowRun) emitAction(action domain.UIAction) {
	if action.ID == "" {
		action.ID = newCallID()
	}
	if action.Kind == "" {
		action.Kind = domain.KindForAction(action.Name)
	}
	run.sink.emit(domain.EmittedEvent{
		Type:       domain.EventToolInput,
		ToolCallID: action.ID,
		ToolName:   action.Name,
		Args:       action.Args,
	})
	run.state.PendingActions = append(run.state.PendingActions, action)
}

var errClientGone = errors.New("client disconnected")

// narrate asks the model for a short narration and falls back to the
// deterministic text built from structured data when the model fails or
// returns nothing, so the turn always renders. Generation is streamed
// so it can be abandoned mid-completion once the client is gone, but
// the narration is emitted whole: dedup identity for text events is
// the full trimmed text, and token-sized deltas would collide on
// repeated words.
func (run *flowRun) narrate(ctx context.Context, prompt, fallback string) {
	req := domain.ModelRequest{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: narrationSystemPrompt(run.state.Flow.NarrativeStyle)},
		{Role: domain.RoleUser, Content: prompt},
	}}
	out, err := run.deps.model.Stream(ctx, req, func(domain.ModelChunk) error {
		if run.sink.disconnected {
			return errClientGone
		}
		return nil
	})
	text := fallback
	if err != nil {
		if errors.Is(err, errClientGone) {
			return
		}
		slog.Warn("narration_model_failed", "error", err)
	} else if out != nil && strings.TrimSpace(out.Text) != "" {
		text = out.Text
	}
	run.emitText(text)
}

func narrationSystemPrompt(style string) string {
	base := "You are a friendly solar monitoring assistant. Answer in two or three plain sentences for a non-technical owner. Never mention internal tools or IDs the user did not use."
	if style != "" {
		base += " Preferred style: " + style + "."
	}
	return base
}

// markRecovery records the failure that should drive the recovery
// sub-machine.
func (run *flowRun) markRecovery(tool, loggerID string, resp domain.ToolResponse) {
	f := &run.state.Flow
	f.NeedsRecovery = true
	f.FailedTool = tool
	f.FailedLoggerID = loggerID
	f.AvailableRange = resp.AvailableRange
}

// plainToolFailure builds the user-facing narration for a terminal tool
// error: plain language plus one concrete next step, never a raw
// transport error.
func plainToolFailure(what string, resp domain.ToolResponse) string {
	detail := strings.TrimSpace(resp.Message)
	if detail == "" {
		detail = "the data source did not respond"
	}
	return fmt.Sprintf("I couldn't fetch %s right now (%s). Give it another try in a minute, or ask me about something else in the meantime.", what, detail)
}

// decodeResult unmarshals the cached result of a tool into T.
func decodeResult[T any](run *flowRun, tool string) (T, bool) {
	var out T
	resp, ok := run.state.Flow.ToolResult(tool)
	if !ok || !resp.OK() || len(resp.Result) == 0 {
		return out, false
	}
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		slog.Warn("tool_result_decode_failed", "tool", tool, "error", err)
		return out, false
	}
	return out, true
}

var (
	loggerIDPattern   = regexp.MustCompile(`\b[A-Za-z0-9][A-Za-z0-9_-]{2,}[A-Za-z0-9]\b`)
	datePattern       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dateInTextPattern = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

// extractLoggerIDs pulls serial-number-looking tokens out of free text:
// anything token-shaped that carries a digit and is not a date.
func extractLoggerIDs(text string) []string {
	matches := loggerIDPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{})
	for _, m := range matches {
		if !strings.ContainsAny(m, "0123456789") {
			continue
		}
		if datePattern.MatchString(m) {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func extractDate(text string) string {
	return dateInTextPattern.FindString(text)
}

// applyDateReply interprets the answer to a date prompt. "latest" (or
// no parseable date at all) clears the range so the tool falls back to
// the most recent data it has.
func applyDateReply(f *domain.FlowContext, reply string) {
	if strings.Contains(strings.ToLower(reply), "latest") {
		f.Date, f.DateStart, f.DateEnd = "", "", ""
		return
	}
	if d := extractDate(reply); d != "" {
		f.Date = d
		f.DateStart = d
		f.DateEnd = d
	}
}

func dedupeStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// promptLoggerSelection emits a device multi-select pre-filled with any
// identifiers already known, and halts the flow until the next turn.
func (run *flowRun) promptLoggerSelection(prefill []string, minCount int, prompt string) {
	f := &run.state.Flow
	run.emitText(prompt)
	run.emitAction(domain.UIAction{
		Name: domain.ActionSelectLoggers,
		Kind: domain.ActionSelection,
		Args: map[string]any{
			"preselected": prefill,
			"min_count":   minCount,
			"multi":       minCount > 1,
		},
	})
	f.WaitingForInput = true
	f.CurrentPromptArg = "logger_ids"
}

func latestUserInput(messages []domain.Message) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != domain.RoleUser {
			continue
		}
		content := strings.TrimSpace(messages[i].Content)
		if content != "" {
			return content, true
		}
	}
	return "", false
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
