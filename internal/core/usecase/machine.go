package usecase

import (
	"context"
	"fmt"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

// StateID names one state of a flow machine. The three shared terminal
// states are handled by the orchestrator; everything else is private to
// the flow that defines it.
type StateID string

const (
	// StateDone means the flow emitted its terminal UI action.
	StateDone StateID = "done"
	// StateAwaitInput means the machine halted waiting for a user
	// selection; the flow resumes on the next turn.
	StateAwaitInput StateID = "await_input"
	// StateNeedsRecovery transfers control to the recovery sub-machine.
	StateNeedsRecovery StateID = "needs_recovery"
)

// maxFlowSteps bounds a single flow invocation so a broken transition
// table cannot loop forever.
const maxFlowSteps = 16

type stepFunc func(ctx context.Context, run *flowRun) (StateID, error)

// flowDef is one deterministic workflow: named states, a step function
// per state returning the next state id, and the entry/resume points.
type flowDef struct {
	id     domain.FlowID
	entry  StateID
	resume StateID
	steps  map[StateID]stepFunc
}

// run drives the machine from its entry (or resume) state until a
// terminal state is reached.
func (d *flowDef) run(ctx context.Context, run *flowRun) (StateID, error) {
	current := d.entry
	if run.state.Flow.WaitingForInput && d.resume != "" {
		current = d.resume
	}

	for i := 0; i < maxFlowSteps; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		step, ok := d.steps[current]
		if !ok {
			return "", fmt.Errorf("flow %s: unknown state %q", d.id, current)
		}
		next, err := step(ctx, run)
		if err != nil {
			return "", fmt.Errorf("flow %s state %s: %w", d.id, current, err)
		}
		run.state.FlowStep++
		switch next {
		case StateDone, StateAwaitInput, StateNeedsRecovery:
			return next, nil
		}
		current = next
	}
	return "", fmt.Errorf("flow %s: exceeded %d steps", d.id, maxFlowSteps)
}

// TurnConfig carries the tunable bounds of the orchestration core.
type TurnConfig struct {
	MaxLoopRounds          int
	FinancialWindowDays    int
	ForecastHorizonDays    int
	DefaultElectricityRate float64
	HistoryLimit           int
}

func (c TurnConfig) normalize() TurnConfig {
	out := c
	if out.MaxLoopRounds <= 0 {
		out.MaxLoopRounds = 10
	}
	if out.FinancialWindowDays <= 0 {
		out.FinancialWindowDays = 30
	}
	if out.ForecastHorizonDays <= 0 {
		out.ForecastHorizonDays = 7
	}
	if out.DefaultElectricityRate <= 0 {
		out.DefaultElectricityRate = 0.20
	}
	if out.HistoryLimit <= 0 {
		out.HistoryLimit = 40
	}
	return out
}

type turnDeps struct {
	tools ports.ToolExecutor
	model ports.LanguageModel
	cfg   TurnConfig
}

// flowRun is the per-turn execution context shared by flow steps, the
// recovery sub-machine, and the fallback loop.
type flowRun struct {
	deps     *turnDeps
	state    *domain.ConversationState
	threadID string
	turn     int
	history  []domain.Message
	lastUser string
	sink     *eventSink

	// Accumulated output for persistence at the end of the turn.
	assistantText []string
	produced      []domain.Message
	toolCalls     int
}
