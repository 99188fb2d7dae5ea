package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

const (
	statePerfCollect StateID = "perf_collect"
	statePerfCompare StateID = "perf_compare"
	statePerfRender  StateID = "perf_render"
)

const maxComparedLoggers = 5

func performanceAuditFlow() *flowDef {
	return &flowDef{
		id:     domain.FlowPerformanceAudit,
		entry:  statePerfCollect,
		resume: statePerfCollect,
		steps: map[StateID]stepFunc{
			statePerfCollect: stepPerfCollect,
			statePerfCompare: stepPerfCompare,
			statePerfRender:  stepPerfRender,
		},
	}
}

// stepPerfCollect gathers the devices to compare. A comparison needs at
// least two; anything less prompts the user with a picker pre-filled
// with whatever was mentioned, and the flow resumes here next turn.
func stepPerfCollect(ctx context.Context, run *flowRun) (StateID, error) {
	f := &run.state.Flow
	switch {
	case f.WaitingForInput && f.CurrentPromptArg == "logger_ids":
		f.WaitingForInput = false
		f.CurrentPromptArg = ""
		f.LoggerIDs = dedupeStrings(append(f.LoggerIDs, extractLoggerIDs(run.lastUser)...))
	case f.WaitingForInput && f.CurrentPromptArg == "date":
		f.WaitingForInput = false
		f.CurrentPromptArg = ""
		applyDateReply(f, run.lastUser)
	case len(f.LoggerIDs) == 0:
		f.LoggerIDs = extractLoggerIDs(run.lastUser)
	}

	if len(f.LoggerIDs) > maxComparedLoggers {
		f.LoggerIDs = f.LoggerIDs[:maxComparedLoggers]
		run.emitText(fmt.Sprintf("I'll compare the first %d devices you mentioned.", maxComparedLoggers))
	}
	if len(f.LoggerIDs) < 2 {
		run.promptLoggerSelection(f.LoggerIDs, 2,
			"Which devices would you like to compare? Pick at least two.")
		return StateAwaitInput, nil
	}
	return statePerfCompare, nil
}

func stepPerfCompare(ctx context.Context, run *flowRun) (StateID, error) {
	f := &run.state.Flow
	args := map[string]any{"logger_ids": f.LoggerIDs}
	if f.DateStart != "" {
		args["date_start"] = f.DateStart
	}
	if f.DateEnd != "" {
		args["date_end"] = f.DateEnd
	}
	if f.Metric != "" {
		args["metric"] = f.Metric
	}

	resp := run.execTool(ctx, toolCompareLoggers, args)
	switch {
	case resp.OK():
		return statePerfRender, nil
	case resp.Recoverable():
		run.markRecovery(toolCompareLoggers, stringOr(f.LoggerIDs), resp)
		return StateNeedsRecovery, nil
	default:
		run.emitText(plainToolFailure("the comparison data", resp))
		return StateDone, nil
	}
}

func stepPerfRender(ctx context.Context, run *flowRun) (StateID, error) {
	report, ok := decodeResult[domain.ComparisonReport](run, toolCompareLoggers)
	best, worst, usable := bestWorst(report.Summary)
	if !ok || !usable {
		// The comparison came back without enough usable data to
		// rank anything. Start the selection over rather than
		// rendering an empty chart.
		run.state.Flow.LoggerIDs = nil
		run.promptLoggerSelection(nil, 2,
			"I didn't get usable data for those devices. Could you pick a different set to compare?")
		return StateAwaitInput, nil
	}

	spread := (report.Summary[best].Avg - report.Summary[worst].Avg) / report.Summary[best].Avg * 100
	severity := domain.ClassifySpread(spread)

	run.narrate(ctx, auditNarrationPrompt(report, best, worst, spread, severity),
		auditFallbackText(best, worst, spread, severity))

	run.emitAction(domain.UIAction{
		Name: domain.ActionRenderComparisonChart,
		Kind: domain.ActionRender,
		Args: map[string]any{
			"report":      report,
			"best":        best,
			"worst":       worst,
			"spread_pct":  spread,
			"severity":    severity,
			"suggestions": resolveSuggestions(report.Context, auditHeuristics(worst, severity)),
		},
	})
	return StateDone, nil
}

// bestWorst ranks loggers by average output. Iteration is over sorted
// keys so ties resolve the same way every run.
func bestWorst(summary map[string]domain.LoggerStats) (best, worst string, ok bool) {
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if best == "" || summary[k].Avg > summary[best].Avg {
			best = k
		}
		if worst == "" || summary[k].Avg < summary[worst].Avg {
			worst = k
		}
	}
	if len(keys) < 2 || summary[best].Avg <= 0 {
		return "", "", false
	}
	return best, worst, true
}

func auditNarrationPrompt(report domain.ComparisonReport, best, worst string, spread float64, severity domain.ComparisonSeverity) string {
	var b strings.Builder
	b.WriteString("Summarize this device comparison for the owner.\n")
	fmt.Fprintf(&b, "Best performer: %s (avg %.1f W). Weakest: %s (avg %.1f W).\n",
		best, report.Summary[best].Avg, worst, report.Summary[worst].Avg)
	fmt.Fprintf(&b, "Gap: %.0f%% (%s).\n", spread, severity)
	if severity == domain.SeverityLarge {
		b.WriteString("A gap this large usually means shading, soiling or a fault on the weak device; say so.\n")
	}
	return b.String()
}

func auditFallbackText(best, worst string, spread float64, severity domain.ComparisonSeverity) string {
	switch severity {
	case domain.SeveritySimilar:
		return fmt.Sprintf("%s and %s are performing within %.0f%% of each other, which is a healthy match.", best, worst, spread)
	case domain.SeverityModerate:
		return fmt.Sprintf("%s is outproducing %s by about %.0f%%. Worth keeping an eye on, but not alarming yet.", best, worst, spread)
	default:
		return fmt.Sprintf("%s is outproducing %s by about %.0f%%. A gap that wide often points to shading, soiling or a fault on %s.", best, worst, spread, worst)
	}
}

func auditHeuristics(worst string, severity domain.ComparisonSeverity) []domain.Suggestion {
	if severity == domain.SeveritySimilar {
		return []domain.Suggestion{{
			Action:   toolFinancialSavings,
			Reason:   "Everything looks balanced; see what it's earning you.",
			Priority: domain.PrioritySuggested,
		}}
	}
	priority := domain.PriorityRecommended
	if severity == domain.SeverityLarge {
		priority = domain.PriorityUrgent
	}
	return []domain.Suggestion{
		{
			Action:   toolAnalyzeHealth,
			Reason:   "Check the weaker device for anomalies.",
			Priority: priority,
			Params:   map[string]any{"logger_id": worst},
		},
		{
			Action:   toolDiagnoseErrors,
			Reason:   "See whether the weaker device has reported error codes.",
			Priority: domain.PrioritySuggested,
			Params:   map[string]any{"logger_id": worst},
		},
	}
}
