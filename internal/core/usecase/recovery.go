package usecase

import (
	"context"
	"fmt"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// runRecovery handles a tool that failed with a recoverable status. It
// is shared by every flow and by the free-chat loop. Each invocation
// burns one attempt; the attempt that pushes the counter past the limit
// gives up and steers the user somewhere that works.
func runRecovery(ctx context.Context, run *flowRun) {
	state := run.state
	f := &state.Flow
	state.RecoveryAttempts++
	f.NeedsRecovery = false

	if state.RecoveryAttempts > domain.MaxRecoveryAttempts {
		run.emitText("I've tried a few different ways to get that data and nothing is coming back. Let's step back: a fleet overview usually works and gives us somewhere to start.")
		run.emitAction(domain.UIAction{
			Name: domain.ActionRenderMarkdown,
			Kind: domain.ActionRender,
			Args: map[string]any{
				"content": "**No data found after several attempts.**\n\nTry a fleet overview, or check that your loggers are uploading.",
				"suggestions": []domain.Suggestion{{
					Action:   toolFleetOverview,
					Reason:   "Get the big picture while this data source is quiet.",
					Priority: domain.PriorityRecommended,
				}},
			},
		})
		state.ActiveFlow = ""
		f.ResetFlowFields()
		return
	}

	failedTool := f.FailedTool
	failedLogger := f.FailedLoggerID
	availableRange := f.AvailableRange

	resp, _ := f.ToolResult(failedTool)
	switch resp.Status {
	case domain.StatusNoDataInWindow:
		recoverDateWindow(run, availableRange)
	case domain.StatusNoData:
		recoverNoData(ctx, run, failedLogger)
	default:
		run.emitText(fmt.Sprintf("I couldn't get that data (%s). Let's try a fleet overview instead, or pick a different device.", plainStatus(resp)))
		state.ActiveFlow = ""
		f.ResetFlowFields()
	}
}

// recoverDateWindow offers the range where data actually exists plus a
// shortcut to the most recent day in it.
func recoverDateWindow(run *flowRun, r *domain.AvailableRange) {
	f := &run.state.Flow
	args := map[string]any{}
	text := "There's no data in that date range."
	if r != nil {
		text = fmt.Sprintf("There's no data in that range, but I do have data from %s to %s. Pick a date, or just say \"latest\".", r.Start, r.End)
		args["min"] = r.Start
		args["max"] = r.End
		args["allow_latest"] = true
	} else {
		text += " Pick another date and I'll try again."
	}
	run.emitText(text)
	run.emitAction(domain.UIAction{
		Name: domain.ActionSelectDate,
		Kind: domain.ActionSelection,
		Args: args,
	})
	f.WaitingForInput = true
	f.CurrentPromptArg = "date"
}

// recoverNoData looks up which loggers do have data and offers them as
// alternatives to the one that came up empty.
func recoverNoData(ctx context.Context, run *flowRun, failedLogger string) {
	f := &run.state.Flow
	resp := run.execTool(ctx, toolListLoggers, nil)
	var alternates []string
	if resp.OK() {
		if list, ok := decodeResult[domain.LoggerList](run, toolListLoggers); ok {
			for _, l := range list.Loggers {
				if l.LoggerID != failedLogger && l.RecordCount > 0 {
					alternates = append(alternates, l.LoggerID)
				}
			}
		}
	}

	if len(alternates) == 0 {
		run.emitText("None of your devices have reported data yet. Check that the loggers are powered and uploading, then ask me again.")
		run.emitAction(domain.UIAction{
			Name: domain.ActionRenderMarkdown,
			Kind: domain.ActionRender,
			Args: map[string]any{
				"content": "**No device data available.**\n\nVerify your loggers are online and uploading telemetry.",
			},
		})
		run.state.ActiveFlow = ""
		f.ResetFlowFields()
		return
	}

	if failedLogger != "" {
		run.emitText(fmt.Sprintf("%s hasn't reported any data. These devices have, though. Pick one and I'll run the same check.", failedLogger))
	} else {
		run.emitText("That source came up empty, but these devices do have data. Pick one and I'll run the same check.")
	}
	run.emitAction(domain.UIAction{
		Name: domain.ActionSelectLoggers,
		Kind: domain.ActionSelection,
		Args: map[string]any{
			"options": alternates,
			"multi":   false,
		},
	})
	f.WaitingForInput = true
	f.CurrentPromptArg = "logger_ids"
}

func plainStatus(resp domain.ToolResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	return "the data source didn't respond"
}
