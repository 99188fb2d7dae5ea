package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

const freeChatSystemPrompt = `You are a solar monitoring assistant for a small fleet of inverters and data loggers.
Use the provided tools to answer questions about production, savings, health and faults.
When a chart or report would help, call the matching render action instead of describing it.
Answer in plain language for a non-technical owner. Never invent numbers; if a tool returns no data, say so.`

// runFallbackLoop handles anything the routed flows don't: a bounded
// conversation loop where the model picks tools and the loop executes
// them. UI actions requested by the model pass straight through to the
// client and end the loop; they are never executed here.
func runFallbackLoop(ctx context.Context, run *flowRun) {
	// A recovery prompt issued from a previous free-chat turn is
	// answered in plain text; the loop picks the answer up from
	// history, so the pending-input flag just clears.
	run.state.Flow.WaitingForInput = false
	run.state.Flow.CurrentPromptArg = ""

	specs := append(toolCatalog(), uiActionSpecs()...)

	messages := make([]domain.Message, 0, len(run.history)+4)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: freeChatSystemPrompt})
	messages = append(messages, run.history...)

	for round := 0; round < run.deps.cfg.MaxLoopRounds; round++ {
		out, err := run.deps.model.Invoke(ctx, domain.ModelRequest{Messages: messages, Tools: specs})
		if err != nil {
			slog.Warn("fallback_model_failed", "round", round, "error", err)
			run.emitText("I'm having trouble reaching the assistant service right now. Your data is fine; please try again in a moment.")
			return
		}
		if out != nil {
			normalizeCallKinds(out.ToolCalls)
		}
		if out == nil || (out.Text == "" && len(out.ToolCalls) == 0) {
			run.emitText("I didn't come up with anything useful for that. Could you rephrase, or ask about your fleet's status, savings or device health?")
			return
		}

		if len(out.ToolCalls) == 0 {
			run.emitText(out.Text)
			return
		}

		// A model turn that only requests UI actions is the loop's
		// natural end: emit them for the client and stop.
		if allTerminal(out.ToolCalls) {
			run.emitText(out.Text)
			for _, call := range out.ToolCalls {
				run.emitAction(domain.UIAction{
					ID:   call.ID,
					Name: call.Name,
					Args: call.Args,
					Kind: call.Kind,
				})
			}
			return
		}

		messages = append(messages, assistantToolCallMessage(run, out))
		run.emitText(out.Text)

		for _, call := range out.ToolCalls {
			if call.Kind != domain.ActionExecute {
				run.emitAction(domain.UIAction{ID: call.ID, Name: call.Name, Args: call.Args, Kind: call.Kind})
				continue
			}
			resp := run.execToolWithID(ctx, call.ID, call.Name, call.Args)
			if resp.Recoverable() {
				run.markRecovery(call.Name, stringArg(call.Args, "logger_id"), resp)
				runRecovery(ctx, run)
				return
			}
			payload, merr := json.Marshal(resp)
			if merr != nil {
				payload = []byte(`{"status":"error"}`)
			}
			messages = append(messages, domain.Message{
				Role:       domain.RoleTool,
				Content:    string(payload),
				ToolName:   call.Name,
				ToolCallID: call.ID,
			})
		}
	}

	run.emitText("I've gone as deep as I can on that one in a single reply. Ask a follow-up and I'll pick up from here.")
}

// normalizeCallKinds backfills the kind on calls a model adapter left
// untagged, so an invented or untagged name still executes instead of
// passing through as a render action.
func normalizeCallKinds(calls []domain.ToolCall) {
	for i, c := range calls {
		if c.Kind == "" {
			calls[i].Kind = domain.KindForAction(c.Name)
		}
	}
}

func allTerminal(calls []domain.ToolCall) bool {
	for _, c := range calls {
		if c.Kind == domain.ActionExecute {
			return false
		}
	}
	return len(calls) > 0
}

func assistantToolCallMessage(run *flowRun, out *domain.ModelOutput) domain.Message {
	calls := make([]map[string]any, 0, len(out.ToolCalls))
	for _, c := range out.ToolCalls {
		calls = append(calls, map[string]any{"id": c.ID, "name": c.Name, "args": c.Args})
	}
	encoded, err := json.Marshal(map[string]any{"text": out.Text, "tool_calls": calls})
	if err != nil {
		encoded = []byte(out.Text)
	}
	return domain.Message{
		ID:        uuid.NewString(),
		ThreadID:  run.threadID,
		Role:      domain.RoleAssistant,
		Content:   string(encoded),
		Turn:      run.turn,
		CreatedAt: time.Now().UTC(),
	}
}
