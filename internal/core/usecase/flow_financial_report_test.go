package usecase

import (
	"context"
	"testing"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

func savingsPayload() domain.FinancialReport {
	return domain.FinancialReport{
		Period:             domain.FinancialPeriod{Start: "2026-07-30", End: "2026-08-29"},
		DaysWithData:       30,
		TotalEnergyKwh:     512.4,
		ElectricityRateUSD: 0.20,
		SavingsUSD:         102.48,
		CO2OffsetKg:        215.2,
		TreesEquivalent:    3.6,
	}
}

func forecastPayload(days ...float64) domain.ProductionForecast {
	f := domain.ProductionForecast{Method: "seasonal_naive", BasedOnDays: 30}
	for i, kwh := range days {
		f.Forecasts = append(f.Forecasts, domain.ForecastDay{
			Date:        "2026-08-3" + string(rune('0'+i)),
			ExpectedKwh: kwh,
		})
	}
	return f
}

func TestFinancialReportHappyPath(t *testing.T) {
	tools := newFakeTools()
	tools.respondJSON(t, toolFinancialSavings, domain.StatusOK, savingsPayload())
	tools.respondJSON(t, toolForecastProduction, domain.StatusOK, forecastPayload(17, 17.5, 16.8))
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport

	terminal, err := financialReportFlow().run(context.Background(), run)
	events := drain()

	if err != nil {
		t.Fatalf("flow error: %v", err)
	}
	if terminal != StateDone {
		t.Fatalf("terminal = %s, want done", terminal)
	}
	renders := actionsByName(events, domain.ActionRenderFinancialReport)
	if len(renders) != 1 {
		t.Fatalf("render actions = %d, want 1", len(renders))
	}
	if _, ok := renders[0].Args["savings"]; !ok {
		t.Fatal("savings missing from render")
	}
	if renders[0].Args["confidence"] != "high" {
		t.Fatalf("confidence = %v, want high for a flat forecast", renders[0].Args["confidence"])
	}
}

func TestFinancialReportDefaultsApplied(t *testing.T) {
	tools := newFakeTools()
	tools.respondJSON(t, toolFinancialSavings, domain.StatusOK, savingsPayload())
	tools.respondJSON(t, toolForecastProduction, domain.StatusOK, forecastPayload(17))
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport

	if _, err := financialReportFlow().run(context.Background(), run); err != nil {
		t.Fatalf("flow error: %v", err)
	}
	drain()

	savingsArgs := tools.calls[0].args
	if savingsArgs["window_days"] != run.deps.cfg.FinancialWindowDays {
		t.Fatalf("window_days = %v, want %d", savingsArgs["window_days"], run.deps.cfg.FinancialWindowDays)
	}
	if savingsArgs["electricity_rate"] != run.deps.cfg.DefaultElectricityRate {
		t.Fatalf("electricity_rate = %v, want default", savingsArgs["electricity_rate"])
	}
	forecastArgs := tools.calls[1].args
	if forecastArgs["horizon_days"] != run.deps.cfg.ForecastHorizonDays {
		t.Fatalf("horizon_days = %v", forecastArgs["horizon_days"])
	}
	if run.state.Flow.ElectricityRate != run.deps.cfg.DefaultElectricityRate {
		t.Fatal("applied rate should persist on the flow context")
	}
}

func TestFinancialReportDateReplyAnchorsWindow(t *testing.T) {
	tools := newFakeTools()
	tools.respondJSON(t, toolFinancialSavings, domain.StatusOK, savingsPayload())
	tools.respondJSON(t, toolForecastProduction, domain.StatusOK, forecastPayload(17))
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport
	run.state.Flow.WaitingForInput = true
	run.state.Flow.CurrentPromptArg = "date"
	run.lastUser = "try 2026-07-15"

	if _, err := financialReportFlow().run(context.Background(), run); err != nil {
		t.Fatalf("flow error: %v", err)
	}
	drain()

	args := tools.calls[0].args
	if args["date_start"] != "2026-07-15" {
		t.Fatalf("date_start = %v, want the picked day", args["date_start"])
	}
	if args["date_end"] != "2026-07-15" {
		t.Fatalf("date_end = %v, want the picked day", args["date_end"])
	}
}

func TestFinancialReportLatestReplyClearsWindow(t *testing.T) {
	tools := newFakeTools()
	tools.respondJSON(t, toolFinancialSavings, domain.StatusOK, savingsPayload())
	tools.respondJSON(t, toolForecastProduction, domain.StatusOK, forecastPayload(17))
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport
	run.state.Flow.WaitingForInput = true
	run.state.Flow.CurrentPromptArg = "date"
	run.state.Flow.DateStart = "2026-07-01"
	run.lastUser = "just use the latest"

	if _, err := financialReportFlow().run(context.Background(), run); err != nil {
		t.Fatalf("flow error: %v", err)
	}
	drain()

	args := tools.calls[0].args
	if _, ok := args["date_start"]; ok {
		t.Fatalf("date_start should be absent after a latest reply: %v", args)
	}
}

func TestFinancialReportMentionedDatePassedThrough(t *testing.T) {
	tools := newFakeTools()
	tools.respondJSON(t, toolFinancialSavings, domain.StatusOK, savingsPayload())
	tools.respondJSON(t, toolForecastProduction, domain.StatusOK, forecastPayload(17))
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport
	run.lastUser = "what did my panels save me around 2026-07-15?"

	if _, err := financialReportFlow().run(context.Background(), run); err != nil {
		t.Fatalf("flow error: %v", err)
	}
	drain()

	if tools.calls[0].args["date_start"] != "2026-07-15" {
		t.Fatalf("date_start = %v, want the mentioned day", tools.calls[0].args["date_start"])
	}
}

func TestFinancialReportRendersPartialOnSingleFailure(t *testing.T) {
	tools := newFakeTools()
	tools.respond(toolFinancialSavings, domain.ToolResponse{Status: domain.StatusNoData})
	tools.respondJSON(t, toolForecastProduction, domain.StatusOK, forecastPayload(17, 18, 16))
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport

	terminal, err := financialReportFlow().run(context.Background(), run)
	events := drain()

	if err != nil {
		t.Fatalf("flow error: %v", err)
	}
	if terminal != StateDone {
		t.Fatalf("terminal = %s, want done: one half succeeding still renders", terminal)
	}
	renders := actionsByName(events, domain.ActionRenderFinancialReport)
	if len(renders) != 1 {
		t.Fatalf("render actions = %d, want 1", len(renders))
	}
	if _, ok := renders[0].Args["savings"]; ok {
		t.Fatal("failed savings half must not render")
	}
	if _, ok := renders[0].Args["forecast"]; !ok {
		t.Fatal("forecast half should render")
	}
}

func TestFinancialReportBothFailedRecoverable(t *testing.T) {
	tools := newFakeTools()
	tools.respond(toolFinancialSavings, domain.ToolResponse{Status: domain.StatusNoData})
	tools.respond(toolForecastProduction, domain.ToolResponse{Status: domain.StatusError})
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport

	terminal, err := financialReportFlow().run(context.Background(), run)
	drain()

	if err != nil {
		t.Fatalf("flow error: %v", err)
	}
	if terminal != StateNeedsRecovery {
		t.Fatalf("terminal = %s, want needs_recovery", terminal)
	}
	if run.state.Flow.FailedTool != toolFinancialSavings {
		t.Fatalf("FailedTool = %q", run.state.Flow.FailedTool)
	}
}

func TestFinancialReportBothFailedHard(t *testing.T) {
	tools := newFakeTools()
	tools.respond(toolFinancialSavings, domain.ToolResponse{Status: domain.StatusError})
	tools.respond(toolForecastProduction, domain.ToolResponse{Status: domain.StatusError})
	run, drain := newTestRun(t, tools, &fakeModel{})
	run.state.ActiveFlow = domain.FlowFinancialReport

	terminal, err := financialReportFlow().run(context.Background(), run)
	events := drain()

	if err != nil {
		t.Fatalf("flow error: %v", err)
	}
	if terminal != StateDone {
		t.Fatalf("terminal = %s, want done", terminal)
	}
	if len(actionsByName(events, domain.ActionRenderFinancialReport)) != 0 {
		t.Fatal("nothing should render when both halves failed hard")
	}
	if !containsText(events, "financial") {
		t.Fatal("plain failure narration expected")
	}
}

func TestForecastConfidenceFromVariance(t *testing.T) {
	if cv := forecastCV(forecastPayload(10, 10, 10)); domain.ForecastConfidence(cv) != "high" {
		t.Fatalf("flat forecast cv = %f, want high confidence", cv)
	}
	if cv := forecastCV(forecastPayload(10, 2, 18)); domain.ForecastConfidence(cv) != "low" {
		t.Fatalf("volatile forecast cv = %f, want low confidence", cv)
	}
}
