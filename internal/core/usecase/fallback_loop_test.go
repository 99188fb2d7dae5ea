package usecase

import (
	"context"
	"testing"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

func TestFallbackLoopPlainAnswerEndsImmediately(t *testing.T) {
	model := &fakeModel{}
	model.push(&domain.ModelOutput{Text: "Solar panels produce direct current."})
	run, drain := newTestRun(t, newFakeTools(), model)

	runFallbackLoop(context.Background(), run)
	events := drain()

	if model.invokes != 1 {
		t.Fatalf("model invokes = %d, want 1", model.invokes)
	}
	if !containsText(events, "direct current") {
		t.Fatal("answer text not emitted")
	}
}

func TestFallbackLoopExecutesToolThenAnswers(t *testing.T) {
	tools := newFakeTools()
	tools.respondJSON(t, toolFleetOverview, domain.StatusOK, domain.FleetOverview{
		Status: domain.FleetStatus{TotalLoggers: 3, ActiveLoggers: 3, PercentOnline: 100},
	})
	model := &fakeModel{}
	model.push(&domain.ModelOutput{ToolCalls: []domain.ToolCall{
		{ID: "c1", Name: toolFleetOverview, Kind: domain.ActionExecute},
	}})
	model.push(&domain.ModelOutput{Text: "All three devices are online."})
	run, drain := newTestRun(t, tools, model)

	runFallbackLoop(context.Background(), run)
	events := drain()

	if tools.callCount(toolFleetOverview) != 1 {
		t.Fatalf("fleet overview calls = %d, want 1", tools.callCount(toolFleetOverview))
	}
	if !containsText(events, "All three devices are online.") {
		t.Fatal("final answer not emitted")
	}
}

func TestFallbackLoopExecutesUntaggedCall(t *testing.T) {
	tools := newFakeTools()
	tools.respond("fetch_satellite_imagery", domain.ToolResponse{Status: domain.StatusError, Message: "unknown tool"})
	model := &fakeModel{}
	// An adapter that didn't resolve the kind leaves it zero-valued.
	model.push(&domain.ModelOutput{ToolCalls: []domain.ToolCall{
		{ID: "c1", Name: "fetch_satellite_imagery"},
	}})
	model.push(&domain.ModelOutput{Text: "That tool doesn't exist, but your fleet looks fine."})
	run, drain := newTestRun(t, tools, model)

	runFallbackLoop(context.Background(), run)
	drain()

	if tools.callCount("fetch_satellite_imagery") != 1 {
		t.Fatal("untagged call must reach the executor, not pass through as a render action")
	}
	if model.invokes != 2 {
		t.Fatalf("model invokes = %d, want 2: the error response goes back to the model", model.invokes)
	}
}

func TestFallbackLoopUIOnlyCallsEndWithoutExecution(t *testing.T) {
	tools := newFakeTools()
	model := &fakeModel{}
	model.push(&domain.ModelOutput{
		Text: "Here's your fleet at a glance.",
		ToolCalls: []domain.ToolCall{
			{ID: "c1", Name: domain.ActionRenderFleetOverview, Kind: domain.ActionRender},
		},
	})
	run, drain := newTestRun(t, tools, model)

	runFallbackLoop(context.Background(), run)
	events := drain()

	if len(tools.calls) != 0 {
		t.Fatalf("UI-only calls must not hit the executor, got %d calls", len(tools.calls))
	}
	if model.invokes != 1 {
		t.Fatalf("model invokes = %d, want 1: UI-only turn ends the loop", model.invokes)
	}
	if len(actionsByName(events, domain.ActionRenderFleetOverview)) != 1 {
		t.Fatal("render action not passed through")
	}
	if len(run.state.PendingActions) != 1 {
		t.Fatalf("pending actions = %d, want 1", len(run.state.PendingActions))
	}
}

func TestFallbackLoopBoundedRounds(t *testing.T) {
	tools := newFakeTools()
	model := &fakeModel{}
	for i := 0; i < 50; i++ {
		tools.respondJSON(t, toolListLoggers, domain.StatusOK, domain.LoggerList{Count: 0})
		model.push(&domain.ModelOutput{ToolCalls: []domain.ToolCall{
			{ID: newCallID(), Name: toolListLoggers, Kind: domain.ActionExecute},
		}})
	}
	run, drain := newTestRun(t, tools, model)

	runFallbackLoop(context.Background(), run)
	drain()

	if model.invokes != run.deps.cfg.MaxLoopRounds {
		t.Fatalf("model invokes = %d, want %d", model.invokes, run.deps.cfg.MaxLoopRounds)
	}
}

func TestFallbackLoopRecoverableResultTransfersToRecovery(t *testing.T) {
	tools := newFakeTools()
	tools.respond(toolAnalyzeHealth, domain.ToolResponse{Status: domain.StatusNoData})
	tools.respondJSON(t, toolListLoggers, domain.StatusOK, domain.LoggerList{
		Count:   1,
		Loggers: []domain.LoggerInfo{{LoggerID: "LOG-009", RecordCount: 7}},
	})
	model := &fakeModel{}
	model.push(&domain.ModelOutput{ToolCalls: []domain.ToolCall{
		{ID: "c1", Name: toolAnalyzeHealth, Args: map[string]any{"logger_id": "LOG-001"}, Kind: domain.ActionExecute},
	}})
	run, drain := newTestRun(t, tools, model)

	runFallbackLoop(context.Background(), run)
	events := drain()

	if run.state.RecoveryAttempts != 1 {
		t.Fatalf("RecoveryAttempts = %d, want 1", run.state.RecoveryAttempts)
	}
	if model.invokes != 1 {
		t.Fatal("loop must end after transferring to recovery")
	}
	if len(actionsByName(events, domain.ActionSelectLoggers)) != 1 {
		t.Fatal("recovery should offer the device that has data")
	}
}

func TestFallbackLoopModelFailureDegradesGracefully(t *testing.T) {
	model := &fakeModel{err: domain.ErrModelUnavailable}
	run, drain := newTestRun(t, newFakeTools(), model)

	runFallbackLoop(context.Background(), run)
	events := drain()

	if len(eventTexts(events)) != 1 {
		t.Fatalf("want exactly one apology text, got %v", eventTexts(events))
	}
}
