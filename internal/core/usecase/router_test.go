package usecase

import (
	"context"
	"testing"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

func TestRouterClassifiesToken(t *testing.T) {
	cases := map[string]domain.FlowID{
		"fleet_briefing":      domain.FlowFleetBriefing,
		" financial_report ":  domain.FlowFinancialReport,
		`"performance_audit"`: domain.FlowPerformanceAudit,
		"Health_Check.":       domain.FlowHealthCheck,
		"greeting":            domain.FlowGreeting,
		"sure: free_chat":     domain.FlowFreeChat,
	}
	for raw, want := range cases {
		model := &fakeModel{}
		model.push(&domain.ModelOutput{Text: raw})
		router := NewRouter(model)

		got := router.Route(context.Background(), domain.NewConversationState(), "whatever")
		if got != want {
			t.Fatalf("Route(%q) = %s, want %s", raw, got, want)
		}
	}
}

func TestRouterMalformedDefaultsToFreeChat(t *testing.T) {
	for _, raw := range []string{"", "banana", "I think the user wants a report about bananas"} {
		model := &fakeModel{}
		model.push(&domain.ModelOutput{Text: raw})
		router := NewRouter(model)

		if got := router.Route(context.Background(), domain.NewConversationState(), "hi"); got != domain.FlowFreeChat {
			t.Fatalf("Route(%q) = %s, want free_chat", raw, got)
		}
	}
}

func TestRouterModelErrorDefaultsToFreeChat(t *testing.T) {
	model := &fakeModel{err: domain.ErrModelUnavailable}
	router := NewRouter(model)

	if got := router.Route(context.Background(), domain.NewConversationState(), "hi"); got != domain.FlowFreeChat {
		t.Fatalf("got %s, want free_chat", got)
	}
}

func TestRouterWaitingFlowSkipsModel(t *testing.T) {
	model := &fakeModel{}
	router := NewRouter(model)
	state := domain.NewConversationState()
	state.ActiveFlow = domain.FlowPerformanceAudit
	state.Flow.WaitingForInput = true

	got := router.Route(context.Background(), state, "LOG-001 and LOG-002")
	if got != domain.FlowPerformanceAudit {
		t.Fatalf("got %s, want the waiting flow", got)
	}
	if model.invokes != 0 {
		t.Fatal("waiting flow must re-enter without a model call")
	}
}
