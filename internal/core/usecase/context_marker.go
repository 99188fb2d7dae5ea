package usecase

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// When no checkpoint store is configured, a compact state fragment is
// appended to the stored assistant text so multi-turn prompts survive a
// process restart. The fragment is an HTML comment so clients that
// render raw history tend to hide it anyway; it is stripped before
// display regardless.
const (
	contextMarkerPrefix = "<!--solar-ctx:"
	contextMarkerSuffix = "-->"
)

var contextMarkerPattern = regexp.MustCompile(`<!--solar-ctx:[A-Za-z0-9+/=]*-->`)

type carriedContext struct {
	ActiveFlow          string         `json:"activeFlow,omitempty"`
	CurrentPromptArg    string         `json:"currentPromptArg,omitempty"`
	WaitingForUserInput bool           `json:"waitingForUserInput,omitempty"`
	ExtractedArgs       map[string]any `json:"extractedArgs,omitempty"`
}

// embedContextMarker appends the carried-over fragment to text. Nothing
// is appended when there is no state worth carrying.
func embedContextMarker(text string, state *domain.ConversationState) string {
	if state == nil || state.ActiveFlow == "" {
		return text
	}
	cc := carriedContext{
		ActiveFlow:          string(state.ActiveFlow),
		CurrentPromptArg:    state.Flow.CurrentPromptArg,
		WaitingForUserInput: state.Flow.WaitingForInput,
		ExtractedArgs:       extractedArgs(&state.Flow),
	}
	encoded, err := json.Marshal(cc)
	if err != nil {
		return text
	}
	return text + contextMarkerPrefix + base64.StdEncoding.EncodeToString(encoded) + contextMarkerSuffix
}

func extractedArgs(f *domain.FlowContext) map[string]any {
	args := map[string]any{}
	if len(f.LoggerIDs) > 0 {
		args["logger_ids"] = f.LoggerIDs
	}
	if f.Date != "" {
		args["date"] = f.Date
	}
	if f.DateStart != "" {
		args["date_start"] = f.DateStart
	}
	if f.DateEnd != "" {
		args["date_end"] = f.DateEnd
	}
	if f.Metric != "" {
		args["metric"] = f.Metric
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

// StripContextMarker removes every carried-over fragment from text. It
// runs on the display and dedup paths so the fragment never leaks to
// the user.
func StripContextMarker(text string) string {
	return contextMarkerPattern.ReplaceAllString(text, "")
}

// parseContextMarker restores flow state from the trailing fragment of
// a stored assistant message. A malformed fragment is logged and
// ignored; the conversation starts that flow over instead of crashing.
func parseContextMarker(text string) (*domain.ConversationState, bool) {
	match := contextMarkerPattern.FindString(text)
	if match == "" {
		return nil, false
	}
	payload := strings.TrimSuffix(strings.TrimPrefix(match, contextMarkerPrefix), contextMarkerSuffix)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		slog.Warn("context_marker_undecodable", "error", err)
		return nil, false
	}
	var cc carriedContext
	if err := json.Unmarshal(raw, &cc); err != nil {
		slog.Warn("context_marker_unparseable", "error", err)
		return nil, false
	}
	flow, ok := domain.ParseFlowID(cc.ActiveFlow)
	if !ok {
		slog.Warn("context_marker_unknown_flow", "flow", cc.ActiveFlow)
		return nil, false
	}

	state := domain.NewConversationState()
	state.ActiveFlow = flow
	state.Flow.CurrentPromptArg = cc.CurrentPromptArg
	state.Flow.WaitingForInput = cc.WaitingForUserInput
	applyExtractedArgs(&state.Flow, cc.ExtractedArgs)
	return state, true
}

func applyExtractedArgs(f *domain.FlowContext, args map[string]any) {
	if args == nil {
		return
	}
	if ids, ok := args["logger_ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				f.LoggerIDs = append(f.LoggerIDs, s)
			}
		}
	}
	if s, ok := args["date"].(string); ok {
		f.Date = s
	}
	if s, ok := args["date_start"].(string); ok {
		f.DateStart = s
	}
	if s, ok := args["date_end"].(string); ok {
		f.DateEnd = s
	}
	if s, ok := args["metric"].(string); ok {
		f.Metric = s
	}
}
