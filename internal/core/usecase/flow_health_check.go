package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

const (
	stateHealthResolve StateID = "health_resolve"
	stateHealthAnalyze StateID = "health_analyze"
	stateHealthFleet   StateID = "health_fleet"
	stateHealthRender  StateID = "health_render"
)

// irradiance above this during zero output marks an anomaly critical.
const criticalIrradianceWm2 = 500

var allDevicesPattern = regexp.MustCompile(`(?i)\b(all|every|each|entire|whole)\b.{0,40}\b(inverters?|devices?|loggers?|panels?|fleet|site)\b`)

func healthCheckFlow() *flowDef {
	return &flowDef{
		id:     domain.FlowHealthCheck,
		entry:  stateHealthResolve,
		resume: stateHealthResolve,
		steps: map[StateID]stepFunc{
			stateHealthResolve: stepHealthResolve,
			stateHealthAnalyze: stepHealthAnalyze,
			stateHealthFleet:   stepHealthFleet,
			stateHealthRender:  stepHealthRender,
		},
	}
}

// stepHealthResolve figures out whose health is being asked about:
// every device, a named device, or neither, in which case the user is
// prompted to pick one.
func stepHealthResolve(ctx context.Context, run *flowRun) (StateID, error) {
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
	}

	if allDevicesPattern.MatchString(run.lastUser) {
		resp := run.execTool(ctx, toolListLoggers, nil)
		switch {
		case resp.OK():
			list, ok := decodeResult[domain.LoggerList](run, toolListLoggers)
			if !ok || len(list.Loggers) == 0 {
				run.emitText("I don't see any devices registered yet. Once a logger reports in, I can check its health.")
				return StateDone, nil
			}
			f.LoggerIDs = f.LoggerIDs[:0]
			for _, l := range list.Loggers {
				f.LoggerIDs = append(f.LoggerIDs, l.LoggerID)
			}
			return stateHealthFleet, nil
		case resp.Recoverable():
			run.markRecovery(toolListLoggers, "", resp)
			return StateNeedsRecovery, nil
		default:
			run.emitText(plainToolFailure("the device list", resp))
			return StateDone, nil
		}
	}

	if len(f.LoggerIDs) == 0 {
		f.LoggerIDs = extractLoggerIDs(run.lastUser)
	}
	if len(f.LoggerIDs) == 0 {
		run.promptLoggerSelection(nil, 1, "Which device would you like me to check?")
		return StateAwaitInput, nil
	}
	f.LoggerIDs = f.LoggerIDs[:1]
	return stateHealthAnalyze, nil
}

func stepHealthAnalyze(ctx context.Context, run *flowRun) (StateID, error) {
	loggerID := run.state.Flow.LoggerIDs[0]
	resp := run.execTool(ctx, toolAnalyzeHealth, healthAnalyzeArgs(loggerID, run.state.Flow.Date))
	switch {
	case resp.OK():
		return stateHealthRender, nil
	case resp.Recoverable():
		run.markRecovery(toolAnalyzeHealth, loggerID, resp)
		return StateNeedsRecovery, nil
	default:
		run.emitText(plainToolFailure(fmt.Sprintf("health data for %s", loggerID), resp))
		return StateDone, nil
	}
}

// stepHealthFleet analyzes every device in turn. Individual failures
// are tolerated; the report covers whatever came back.
func stepHealthFleet(ctx context.Context, run *flowRun) (StateID, error) {
	type deviceHealth struct {
		LoggerID  string                `json:"logger_id"`
		Score     int                   `json:"score"`
		Anomalies []domain.AnomalyPoint `json:"anomalies"`
		Error     string                `json:"error,omitempty"`
	}

	var results []deviceHealth
	worstScore := 100
	worstID := ""
	for _, id := range run.state.Flow.LoggerIDs {
		resp := run.execTool(ctx, toolAnalyzeHealth, healthAnalyzeArgs(id, run.state.Flow.Date))
		if !resp.OK() {
			results = append(results, deviceHealth{LoggerID: id, Error: resp.Message})
			continue
		}
		report, ok := decodeResult[domain.HealthReport](run, toolAnalyzeHealth)
		if !ok {
			results = append(results, deviceHealth{LoggerID: id, Error: "unreadable result"})
			continue
		}
		score := domain.HealthScore(report.AnomalyCount)
		results = append(results, deviceHealth{LoggerID: id, Score: score, Anomalies: report.Points})
		if score < worstScore {
			worstScore = score
			worstID = id
		}
	}

	fallback := fmt.Sprintf("I checked %d devices.", len(results))
	if worstID != "" && worstScore < 100 {
		fallback = fmt.Sprintf("I checked %d devices. %s needs the most attention with a health score of %d.",
			len(results), worstID, worstScore)
	} else {
		fallback += " Everything looks healthy."
	}
	run.narrate(ctx, fleetHealthNarrationPrompt(len(results), worstID, worstScore), fallback)

	run.emitAction(domain.UIAction{
		Name: domain.ActionRenderHealthReport,
		Kind: domain.ActionRender,
		Args: map[string]any{
			"scope":   "fleet",
			"devices": results,
		},
	})
	return StateDone, nil
}

// healthAnalyzeArgs carries the picked date into the analysis, so a
// retry after an empty window actually looks at the new day.
func healthAnalyzeArgs(loggerID, date string) map[string]any {
	args := map[string]any{"logger_id": loggerID}
	if date != "" {
		args["date"] = date
	}
	return args
}

func stepHealthRender(ctx context.Context, run *flowRun) (StateID, error) {
	loggerID := run.state.Flow.LoggerIDs[0]
	report, ok := decodeResult[domain.HealthReport](run, toolAnalyzeHealth)
	if !ok {
		run.emitText(fmt.Sprintf("I couldn't read the health data for %s. Try again in a moment.", loggerID))
		return StateDone, nil
	}

	score := domain.HealthScore(report.AnomalyCount)
	tagged := make([]domain.AnomalyPoint, 0, len(report.Points))
	for _, a := range report.Points {
		if a.Severity == "" {
			a.Severity = "warning"
			if a.Irradiance != nil && *a.Irradiance > criticalIrradianceWm2 {
				a.Severity = "critical"
			}
		}
		tagged = append(tagged, a)
	}

	run.narrate(ctx, deviceHealthNarrationPrompt(loggerID, score, report),
		deviceHealthFallbackText(loggerID, score, report.AnomalyCount))

	run.emitAction(domain.UIAction{
		Name: domain.ActionRenderHealthReport,
		Kind: domain.ActionRender,
		Args: map[string]any{
			"scope":       "device",
			"logger_id":   loggerID,
			"score":       score,
			"anomalies":   tagged,
			"suggestions": resolveSuggestions(report.Context, healthHeuristics(loggerID, score)),
		},
	})
	return StateDone, nil
}

func fleetHealthNarrationPrompt(count int, worstID string, worstScore int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize a health sweep of %d solar devices for the owner.\n", count)
	if worstID != "" && worstScore < 100 {
		fmt.Fprintf(&b, "The weakest device is %s with a score of %d out of 100.\n", worstID, worstScore)
	} else {
		b.WriteString("No anomalies were found on any device.\n")
	}
	return b.String()
}

func deviceHealthNarrationPrompt(loggerID string, score int, report domain.HealthReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the health of solar device %s for the owner.\n", loggerID)
	fmt.Fprintf(&b, "Health score: %d out of 100, %d anomalies found.\n", score, report.AnomalyCount)
	for i, a := range report.Points {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "Anomaly: %s\n", a.Reason)
	}
	return b.String()
}

func deviceHealthFallbackText(loggerID string, score, anomalies int) string {
	if anomalies == 0 {
		return fmt.Sprintf("%s looks healthy. No anomalies in the recent telemetry and a score of %d out of 100.", loggerID, score)
	}
	return fmt.Sprintf("%s has %d anomalies in recent telemetry, bringing its health score to %d out of 100.", loggerID, anomalies, score)
}

func healthHeuristics(loggerID string, score int) []domain.Suggestion {
	if score >= 100 {
		return []domain.Suggestion{{
			Action:   toolPerformanceRatio,
			Reason:   "The device is healthy; see how efficiently it's running.",
			Priority: domain.PrioritySuggested,
			Params:   map[string]any{"logger_id": loggerID},
		}}
	}
	return []domain.Suggestion{
		{
			Action:   toolDiagnoseErrors,
			Reason:   "Check whether the anomalies line up with reported error codes.",
			Priority: domain.PriorityRecommended,
			Params:   map[string]any{"logger_id": loggerID},
		},
		{
			Action:   toolPowerCurve,
			Reason:   "Look at the day's power curve to see when output dropped.",
			Priority: domain.PrioritySuggested,
			Params:   map[string]any{"logger_id": loggerID},
		},
	}
}
