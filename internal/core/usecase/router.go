package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

const routerSystemPrompt = `You classify one user message for a solar monitoring assistant.
Reply with exactly one token from this list and nothing else:
fleet_briefing financial_report performance_audit health_check greeting free_chat

fleet_briefing: status of the whole fleet, "how are things", morning check-ins.
financial_report: savings, money, bills, forecasted production value.
performance_audit: comparing specific devices against each other.
health_check: whether a device (or all devices) is healthy, anomalies, faults.
greeting: pure greetings with no question.
free_chat: everything else.`

// Router classifies an incoming user message into a flow. Any failure
// degrades to free chat, which can answer anything through the tool
// loop.
type Router struct {
	model ports.LanguageModel
}

func NewRouter(model ports.LanguageModel) *Router {
	return &Router{model: model}
}

// Route returns the flow that should handle the message. When a flow is
// already mid-prompt waiting on the user, the answer goes back to that
// flow without consulting the model.
func (r *Router) Route(ctx context.Context, state *domain.ConversationState, userText string) domain.FlowID {
	if state.ActiveFlow != "" && state.Flow.WaitingForInput {
		return state.ActiveFlow
	}

	out, err := r.model.Invoke(ctx, domain.ModelRequest{Messages: []domain.Message{
		{Role: domain.RoleSystem, Content: routerSystemPrompt},
		{Role: domain.RoleUser, Content: userText},
	}})
	if err != nil {
		slog.Warn("router_model_failed", "error", err)
		return domain.FlowFreeChat
	}

	token := normalizeRouteToken(out.Text)
	flow, ok := domain.ParseFlowID(token)
	if !ok {
		slog.Debug("router_unparseable", "raw", out.Text)
		return domain.FlowFreeChat
	}
	return flow
}

// normalizeRouteToken tolerates models that wrap the token in quotes,
// punctuation or extra prose by taking the first recognizable word.
func normalizeRouteToken(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	raw = strings.Trim(raw, "\"'`.,:;!")
	if raw == "" {
		return ""
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r != '_' && (r < 'a' || r > 'z')
	})
	for _, f := range fields {
		if _, ok := domain.ParseFlowID(f); ok {
			return f
		}
	}
	return raw
}
