package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

const (
	stateFleetFetch    StateID = "fleet_fetch"
	stateFleetDiagnose StateID = "fleet_diagnose"
	stateFleetRender   StateID = "fleet_render"
)

func fleetBriefingFlow() *flowDef {
	return &flowDef{
		id:    domain.FlowFleetBriefing,
		entry: stateFleetFetch,
		steps: map[StateID]stepFunc{
			stateFleetFetch:    stepFleetFetch,
			stateFleetDiagnose: stepFleetDiagnose,
			stateFleetRender:   stepFleetRender,
		},
	}
}

func stepFleetFetch(ctx context.Context, run *flowRun) (StateID, error) {
	f := &run.state.Flow
	if f.WaitingForInput {
		// A briefing restarts from scratch after any recovery prompt.
		f.WaitingForInput = false
		f.CurrentPromptArg = ""
	}
	resp := run.execTool(ctx, toolFleetOverview, nil)
	switch {
	case resp.OK():
		return stateFleetDiagnose, nil
	case resp.Recoverable():
		run.markRecovery(toolFleetOverview, "", resp)
		return StateNeedsRecovery, nil
	default:
		run.emitText(plainToolFailure("the fleet overview", resp))
		return StateDone, nil
	}
}

// stepFleetDiagnose digs into the first offline device so the briefing
// can say why, not just that, something is down. A fully online fleet
// skips straight to rendering.
func stepFleetDiagnose(ctx context.Context, run *flowRun) (StateID, error) {
	overview, ok := decodeResult[domain.FleetOverview](run, toolFleetOverview)
	if !ok {
		run.emitText("I couldn't read the fleet data just now. Try asking for the overview again in a moment.")
		return StateDone, nil
	}
	if overview.Status.PercentOnline >= 100 || len(overview.Status.OfflineLoggerIDs) == 0 {
		return stateFleetRender, nil
	}
	// Diagnosis is best-effort: a failure here must not sink the
	// briefing, so recoverable statuses fall through to render.
	run.execTool(ctx, toolDiagnoseErrors, map[string]any{
		"logger_id": overview.Status.OfflineLoggerIDs[0],
	})
	return stateFleetRender, nil
}

func stepFleetRender(ctx context.Context, run *flowRun) (StateID, error) {
	overview, ok := decodeResult[domain.FleetOverview](run, toolFleetOverview)
	if !ok {
		run.emitText("I couldn't read the fleet data just now. Try asking for the overview again in a moment.")
		return StateDone, nil
	}

	alerts := fleetAlerts(run, overview)
	run.narrate(ctx, fleetNarrationPrompt(run, overview, alerts), fleetFallbackText(run, overview, alerts))

	suggestions := resolveSuggestions(overview.Context, fleetHeuristics(overview))
	run.emitAction(domain.UIAction{
		Name: domain.ActionRenderFleetOverview,
		Kind: domain.ActionRender,
		Args: map[string]any{
			"status":      overview.Status,
			"production":  overview.Production,
			"alerts":      alerts,
			"suggestions": suggestions,
		},
	})

	run.state.Flow.PriorFleetSnapshot = &domain.FleetSnapshot{
		TakenAt:        time.Now().UTC(),
		TotalLoggers:   overview.Status.TotalLoggers,
		ActiveLoggers:  overview.Status.ActiveLoggers,
		PercentOnline:  overview.Status.PercentOnline,
		TodayEnergyKwh: overview.Production.TodayTotalEnergyKwh,
	}
	return StateDone, nil
}

func fleetAlerts(run *flowRun, overview domain.FleetOverview) []string {
	var alerts []string
	for _, id := range overview.Status.OfflineLoggerIDs {
		alerts = append(alerts, fmt.Sprintf("Device %s is offline.", id))
	}
	if diag, ok := decodeResult[domain.DiagnosticsReport](run, toolDiagnoseErrors); ok {
		for _, issue := range diag.Issues {
			alerts = append(alerts, fmt.Sprintf("%s: %s", diag.LoggerID, issue.Description))
		}
	}
	return alerts
}

func fleetNarrationPrompt(run *flowRun, overview domain.FleetOverview, alerts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize this solar fleet status for the owner.\n")
	fmt.Fprintf(&b, "Devices online: %d of %d (%.0f%%).\n",
		overview.Status.ActiveLoggers, overview.Status.TotalLoggers, overview.Status.PercentOnline)
	fmt.Fprintf(&b, "Production today: %.1f kWh. Overall health: %s.\n",
		overview.Production.TodayTotalEnergyKwh, domain.ClassifyFleetHealth(overview.Status.PercentOnline))
	if prior := run.state.Flow.PriorFleetSnapshot; prior != nil {
		fmt.Fprintf(&b, "Compared to the last check (%s): %d online then, %.1f kWh then.\n",
			prior.TakenAt.Format("Jan 2"), prior.ActiveLoggers, prior.TodayEnergyKwh)
	}
	for _, a := range alerts {
		fmt.Fprintf(&b, "Alert: %s\n", a)
	}
	return b.String()
}

func fleetFallbackText(run *flowRun, overview domain.FleetOverview, alerts []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d devices are online (%.0f%%) and the fleet has produced %.1f kWh today.",
		overview.Status.ActiveLoggers, overview.Status.TotalLoggers,
		overview.Status.PercentOnline, overview.Production.TodayTotalEnergyKwh)
	if prior := run.state.Flow.PriorFleetSnapshot; prior != nil {
		delta := overview.Production.TodayTotalEnergyKwh - prior.TodayEnergyKwh
		switch {
		case delta > 0:
			fmt.Fprintf(&b, " That's %.1f kWh more than last time we checked.", delta)
		case delta < 0:
			fmt.Fprintf(&b, " That's %.1f kWh less than last time we checked.", -delta)
		}
	}
	if len(alerts) > 0 {
		fmt.Fprintf(&b, " %s", alerts[0])
	}
	return b.String()
}
