package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

const (
	stateFinSavings  StateID = "fin_savings"
	stateFinForecast StateID = "fin_forecast"
	stateFinRender   StateID = "fin_render"
)

func financialReportFlow() *flowDef {
	return &flowDef{
		id:    domain.FlowFinancialReport,
		entry: stateFinSavings,
		steps: map[StateID]stepFunc{
			stateFinSavings:  stepFinSavings,
			stateFinForecast: stepFinForecast,
			stateFinRender:   stepFinRender,
		},
	}
}

func stepFinSavings(ctx context.Context, run *flowRun) (StateID, error) {
	f := &run.state.Flow
	if f.WaitingForInput {
		switch f.CurrentPromptArg {
		case "logger_ids":
			f.LoggerIDs = dedupeStrings(append(f.LoggerIDs, extractLoggerIDs(run.lastUser)...))
		case "date":
			applyDateReply(f, run.lastUser)
		}
		f.WaitingForInput = false
		f.CurrentPromptArg = ""
	} else if f.Date == "" && f.DateStart == "" {
		if date := extractDate(run.lastUser); date != "" {
			f.Date = date
		}
	}
	rate := f.ElectricityRate
	if rate <= 0 {
		rate = run.deps.cfg.DefaultElectricityRate
	}
	args := map[string]any{
		"window_days":      run.deps.cfg.FinancialWindowDays,
		"electricity_rate": rate,
	}
	if ids := f.LoggerIDs; len(ids) == 1 {
		args["logger_id"] = ids[0]
	}
	// A picked or recovered date anchors the savings window.
	switch {
	case f.DateStart != "":
		args["date_start"] = f.DateStart
		if f.DateEnd != "" {
			args["date_end"] = f.DateEnd
		}
	case f.Date != "":
		args["date_start"] = f.Date
	}
	run.execTool(ctx, toolFinancialSavings, args)
	f.ElectricityRate = rate
	return stateFinForecast, nil
}

func stepFinForecast(ctx context.Context, run *flowRun) (StateID, error) {
	run.execTool(ctx, toolForecastProduction, map[string]any{
		"horizon_days": run.deps.cfg.ForecastHorizonDays,
	})
	return stateFinRender, nil
}

// stepFinRender renders whatever succeeded. Recovery is reserved for
// the case where neither call produced data and at least one failure is
// recoverable; a single failed half still yields a partial report.
func stepFinRender(ctx context.Context, run *flowRun) (StateID, error) {
	savings, savingsOK := decodeResult[domain.FinancialReport](run, toolFinancialSavings)
	forecast, forecastOK := decodeResult[domain.ProductionForecast](run, toolForecastProduction)

	if !savingsOK && !forecastOK {
		if tool, resp, ok := firstRecoverableFailure(run, toolFinancialSavings, toolForecastProduction); ok {
			run.markRecovery(tool, stringOr(run.state.Flow.LoggerIDs), resp)
			return StateNeedsRecovery, nil
		}
		run.emitText("I couldn't pull any financial data right now. A fleet overview might still work if you'd like to check on production instead.")
		return StateDone, nil
	}

	run.narrate(ctx, financialNarrationPrompt(savings, savingsOK, forecast, forecastOK),
		financialFallbackText(savings, savingsOK, forecast, forecastOK))

	args := map[string]any{}
	if savingsOK {
		args["savings"] = savings
	}
	if forecastOK {
		args["forecast"] = forecast
		args["confidence"] = domain.ForecastConfidence(forecastCV(forecast))
	}
	run.emitAction(domain.UIAction{
		Name: domain.ActionRenderFinancialReport,
		Kind: domain.ActionRender,
		Args: args,
	})
	return StateDone, nil
}

func firstRecoverableFailure(run *flowRun, tools ...string) (string, domain.ToolResponse, bool) {
	for _, tool := range tools {
		resp, ok := run.state.Flow.ToolResult(tool)
		if ok && resp.Recoverable() {
			return tool, resp, true
		}
	}
	return "", domain.ToolResponse{}, false
}

func stringOr(ids []string) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}

func forecastCV(f domain.ProductionForecast) float64 {
	if len(f.Forecasts) == 0 {
		return 1
	}
	var sum float64
	for _, d := range f.Forecasts {
		sum += d.ExpectedKwh
	}
	mean := sum / float64(len(f.Forecasts))
	if mean <= 0 {
		return 1
	}
	var variance float64
	for _, d := range f.Forecasts {
		diff := d.ExpectedKwh - mean
		variance += diff * diff
	}
	variance /= float64(len(f.Forecasts))
	return math.Sqrt(variance) / mean
}

func financialNarrationPrompt(savings domain.FinancialReport, savingsOK bool, forecast domain.ProductionForecast, forecastOK bool) string {
	var b strings.Builder
	b.WriteString("Summarize this solar savings report for the owner.\n")
	if savingsOK {
		fmt.Fprintf(&b, "Saved %.2f USD over %d days with data from %.1f kWh produced.\n",
			savings.SavingsUSD, savings.DaysWithData, savings.TotalEnergyKwh)
		fmt.Fprintf(&b, "CO2 offset: %.1f kg, about %.1f trees.\n",
			savings.CO2OffsetKg, savings.TreesEquivalent)
	} else {
		b.WriteString("The savings calculation is unavailable this time; mention that gently.\n")
	}
	if forecastOK {
		fmt.Fprintf(&b, "Forecast for the next %d days totals %.1f kWh.\n",
			len(forecast.Forecasts), forecastTotal(forecast))
	} else {
		b.WriteString("The production forecast is unavailable this time; mention that gently.\n")
	}
	return b.String()
}

func financialFallbackText(savings domain.FinancialReport, savingsOK bool, forecast domain.ProductionForecast, forecastOK bool) string {
	var parts []string
	if savingsOK {
		parts = append(parts, fmt.Sprintf("Your fleet saved about $%.2f over the last %d days with data.",
			savings.SavingsUSD, savings.DaysWithData))
	}
	if forecastOK {
		parts = append(parts, fmt.Sprintf("The next %d days should add roughly %.1f kWh.",
			len(forecast.Forecasts), forecastTotal(forecast)))
	}
	if !savingsOK {
		parts = append(parts, "I couldn't calculate savings this time.")
	}
	if !forecastOK {
		parts = append(parts, "The forecast is unavailable right now.")
	}
	return strings.Join(parts, " ")
}

func forecastTotal(f domain.ProductionForecast) float64 {
	var sum float64
	for _, d := range f.Forecasts {
		sum += d.ExpectedKwh
	}
	return sum
}
