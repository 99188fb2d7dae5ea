package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
)

const greetingText = "Hi! I'm your solar assistant. I can brief you on the fleet, check a device's health, compare inverters, or work out what your panels have saved you. What would you like to know?"

var errNoUserMessage = errors.New("no non-empty user message")

// TurnUseCase orchestrates one conversation turn: route the message,
// drive the matching flow machine (or the free-chat loop), stream
// normalized events, and persist state and messages at the end.
type TurnUseCase struct {
	tools       ports.ToolExecutor
	model       ports.LanguageModel
	router      *Router
	checkpoints ports.CheckpointStore
	threads     ports.ThreadStore
	audit       ports.TurnAuditPublisher
	cfg         TurnConfig
	flows       map[domain.FlowID]*flowDef
}

// NewTurnUseCase wires the orchestrator. checkpoints, threads and audit
// may be nil: without checkpoints, state is carried in a marker on the
// stored assistant text; without threads, turns are ephemeral; without
// audit, summaries are dropped.
func NewTurnUseCase(
	tools ports.ToolExecutor,
	model ports.LanguageModel,
	checkpoints ports.CheckpointStore,
	threads ports.ThreadStore,
	audit ports.TurnAuditPublisher,
	cfg TurnConfig,
) *TurnUseCase {
	return &TurnUseCase{
		tools:       tools,
		model:       model,
		router:      NewRouter(model),
		checkpoints: checkpoints,
		threads:     threads,
		audit:       audit,
		cfg:         cfg.normalize(),
		flows: map[domain.FlowID]*flowDef{
			domain.FlowFleetBriefing:    fleetBriefingFlow(),
			domain.FlowFinancialReport:  financialReportFlow(),
			domain.FlowPerformanceAudit: performanceAuditFlow(),
			domain.FlowHealthCheck:      healthCheckFlow(),
		},
	}
}

var _ ports.TurnService = (*TurnUseCase)(nil)

// RunTurn validates the request and starts the turn in the background.
// Events arrive on the returned channel, which is closed when the turn
// finishes or the context is cancelled.
func (uc *TurnUseCase) RunTurn(ctx context.Context, threadID string, messages []domain.Message) (<-chan domain.EmittedEvent, error) {
	lastUser, ok := latestUserInput(messages)
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "run turn", errNoUserMessage)
	}

	ephemeral := false
	if threadID == "" {
		threadID = uuid.NewString()
		ephemeral = true
	}

	out := make(chan domain.EmittedEvent, 16)
	go uc.execute(ctx, threadID, ephemeral, lastUser, messages, out)
	return out, nil
}

func (uc *TurnUseCase) execute(ctx context.Context, threadID string, ephemeral bool, lastUser string, incoming []domain.Message, out chan<- domain.EmittedEvent) {
	defer close(out)
	started := time.Now()

	state := uc.restoreState(ctx, threadID, incoming)
	state.PendingActions = nil

	turn := 1
	var history []domain.Message
	persistent := !ephemeral && uc.threads != nil
	if persistent {
		if _, err := uc.threads.EnsureThread(ctx, threadID); err != nil {
			slog.Error("ensure_thread_failed", "thread_id", threadID, "error", err)
			persistent = false
		}
	}
	if persistent {
		if n, err := uc.threads.NextTurn(ctx, threadID); err == nil {
			turn = n
		}
		if msgs, err := uc.threads.ListRecentMessages(ctx, threadID, uc.cfg.HistoryLimit); err == nil {
			history = msgs
		} else {
			slog.Warn("list_history_failed", "thread_id", threadID, "error", err)
		}
	}
	if len(history) == 0 {
		history = incoming
	}

	sink := newEventSink(ctx, out)
	sink.seedFromHistory(history)

	run := &flowRun{
		deps:     &turnDeps{tools: uc.tools, model: uc.model, cfg: uc.cfg},
		state:    state,
		threadID: threadID,
		turn:     turn,
		history:  history,
		lastUser: lastUser,
		sink:     sink,
	}

	flow := uc.router.Route(ctx, state, lastUser)
	if flow != state.ActiveFlow {
		state.Flow.ResetFlowFields()
		state.RecoveryAttempts = 0
		state.FlowStep = 0
		state.ActiveFlow = flow
	}

	uc.dispatch(ctx, flow, run)

	if (sink.disconnected || ctx.Err() != nil) && sink.emitted == 0 {
		// Nothing reached the client; treat the turn as if it never
		// happened so a retry is clean.
		return
	}

	recoveryAttempts := run.state.RecoveryAttempts
	if run.state.ActiveFlow != "" && !run.state.Flow.WaitingForInput {
		// The flow finished this turn; only a mid-prompt flow keeps
		// its state alive across turns.
		run.state.ActiveFlow = ""
		run.state.FlowStep = 0
		run.state.RecoveryAttempts = 0
		run.state.Flow.ResetFlowFields()
	}

	uc.persistTurn(ctx, run, lastUser, persistent)
	uc.publishAudit(ctx, run, flow, recoveryAttempts, ephemeral, time.Since(started))
}

func (uc *TurnUseCase) dispatch(ctx context.Context, flow domain.FlowID, run *flowRun) {
	switch flow {
	case domain.FlowGreeting:
		run.emitText(greetingText)
		run.emitAction(domain.UIAction{
			Name: domain.ActionRenderMarkdown,
			Kind: domain.ActionRender,
			Args: map[string]any{"content": "Try: *\"How is my fleet doing?\"* or *\"Is inverter LOG-001 healthy?\"*"},
		})
	case domain.FlowFreeChat:
		runFallbackLoop(ctx, run)
	default:
		def, ok := uc.flows[flow]
		if !ok {
			runFallbackLoop(ctx, run)
			return
		}
		terminal, err := def.run(ctx, run)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("flow_failed", "flow", flow, "error", err)
			run.emitText("Something went wrong on my side while working through that. Your data is fine; please try again.")
			run.state.ActiveFlow = ""
			run.state.Flow.ResetFlowFields()
			return
		}
		if terminal == StateNeedsRecovery {
			runRecovery(ctx, run)
		}
	}
}

// restoreState loads the checkpointed state, falling back to the marker
// embedded in the last stored assistant message, then to a fresh state.
func (uc *TurnUseCase) restoreState(ctx context.Context, threadID string, incoming []domain.Message) *domain.ConversationState {
	if uc.checkpoints != nil {
		state, err := uc.checkpoints.Load(ctx, threadID)
		if err == nil && state != nil {
			return state
		}
		if err != nil && !domain.IsKind(err, domain.ErrNoCheckpoint) {
			slog.Warn("checkpoint_load_failed", "thread_id", threadID, "error", err)
		}
		return domain.NewConversationState()
	}
	for i := len(incoming) - 1; i >= 0; i-- {
		if incoming[i].Role != domain.RoleAssistant {
			continue
		}
		if state, ok := parseContextMarker(incoming[i].Content); ok {
			return state
		}
		break
	}
	return domain.NewConversationState()
}

func (uc *TurnUseCase) persistTurn(ctx context.Context, run *flowRun, lastUser string, persistent bool) {
	// The checkpoint is saved even for ephemeral threads so an abandoned
	// turn costs nothing but a TTL'd key.
	if uc.checkpoints != nil {
		if err := uc.checkpoints.Save(ctx, run.threadID, run.state); err != nil {
			slog.Warn("checkpoint_save_failed", "thread_id", run.threadID, "error", err)
		}
	}
	if !persistent {
		return
	}

	now := time.Now().UTC()
	userMsg := domain.Message{
		ID:        uuid.NewString(),
		ThreadID:  run.threadID,
		Role:      domain.RoleUser,
		Content:   lastUser,
		Turn:      run.turn,
		CreatedAt: now,
	}
	if err := uc.threads.AppendMessage(ctx, userMsg); err != nil {
		slog.Warn("append_user_message_failed", "thread_id", run.threadID, "error", err)
	}
	for _, msg := range run.produced {
		if err := uc.threads.AppendMessage(ctx, msg); err != nil {
			slog.Warn("append_tool_message_failed", "thread_id", run.threadID, "error", err)
		}
	}

	text := strings.Join(run.assistantText, "\n\n")
	if uc.checkpoints == nil {
		text = embedContextMarker(text, run.state)
	}
	if strings.TrimSpace(text) != "" {
		assistantMsg := domain.Message{
			ID:        uuid.NewString(),
			ThreadID:  run.threadID,
			Role:      domain.RoleAssistant,
			Content:   text,
			Turn:      run.turn,
			CreatedAt: now,
		}
		if err := uc.threads.AppendMessage(ctx, assistantMsg); err != nil {
			slog.Warn("append_assistant_message_failed", "thread_id", run.threadID, "error", err)
		}
	}
}

func (uc *TurnUseCase) publishAudit(ctx context.Context, run *flowRun, flow domain.FlowID, recoveryAttempts int, ephemeral bool, elapsed time.Duration) {
	if uc.audit == nil {
		return
	}
	audit := domain.TurnAudit{
		ThreadID:         run.threadID,
		Turn:             run.turn,
		Flow:             flow,
		RecoveryAttempts: recoveryAttempts,
		EventsEmitted:    run.sink.emitted,
		EventsSuppressed: run.sink.suppressed,
		ToolCalls:        run.toolCalls,
		Duration:         elapsed,
		Ephemeral:        ephemeral,
	}
	if err := uc.audit.PublishTurnCompleted(ctx, audit); err != nil {
		slog.Debug("turn_audit_publish_failed", "thread_id", run.threadID, "error", err)
	}
}
