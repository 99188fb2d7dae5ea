package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

// fakeToolExecutor serves scripted responses per tool name and records
// every call in order.
type fakeToolExecutor struct {
	mu        sync.Mutex
	responses map[string][]domain.ToolResponse
	calls     []recordedCall
}

type recordedCall struct {
	name string
	args map[string]any
}

func newFakeTools() *fakeToolExecutor {
	return &fakeToolExecutor{responses: make(map[string][]domain.ToolResponse)}
}

func (f *fakeToolExecutor) respond(name string, resp domain.ToolResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[name] = append(f.responses[name], resp)
}

func (f *fakeToolExecutor) respondJSON(t *testing.T, name string, status domain.DataStatus, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload for %s: %v", name, err)
	}
	f.respond(name, domain.ToolResponse{Status: status, Result: raw})
}

func (f *fakeToolExecutor) Execute(_ context.Context, name string, args map[string]any) (domain.ToolResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{name: name, args: args})
	queue := f.responses[name]
	if len(queue) == 0 {
		return domain.ToolResponse{Status: domain.StatusError, Message: "no scripted response"}, nil
	}
	resp := queue[0]
	f.responses[name] = queue[1:]
	return resp, nil
}

func (f *fakeToolExecutor) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.name == name {
			n++
		}
	}
	return n
}

// fakeModel serves scripted outputs in order. When the script runs out
// it returns an empty text completion.
type fakeModel struct {
	mu      sync.Mutex
	outputs []*domain.ModelOutput
	err     error
	invokes int
	streams int
}

func (f *fakeModel) push(out *domain.ModelOutput) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, out)
}

func (f *fakeModel) Invoke(_ context.Context, _ domain.ModelRequest) (*domain.ModelOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokes++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.outputs) == 0 {
		return &domain.ModelOutput{Text: ""}, nil
	}
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return out, nil
}

func (f *fakeModel) Stream(ctx context.Context, req domain.ModelRequest, fn func(domain.ModelChunk) error) (*domain.ModelOutput, error) {
	f.mu.Lock()
	f.streams++
	f.mu.Unlock()
	out, err := f.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.Text != "" {
		if err := fn(domain.ModelChunk{TextDelta: out.Text}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// memCheckpoints is an in-process CheckpointStore for tests.
type memCheckpoints struct {
	mu     sync.Mutex
	states map[string]*domain.ConversationState
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{states: make(map[string]*domain.ConversationState)}
}

func (m *memCheckpoints) Load(_ context.Context, threadID string) (*domain.ConversationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[threadID]
	if !ok {
		return nil, domain.ErrNoCheckpoint
	}
	clone := *state
	return &clone, nil
}

func (m *memCheckpoints) Save(_ context.Context, threadID string, state *domain.ConversationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *state
	m.states[threadID] = &clone
	return nil
}

// memThreads is an in-process ThreadStore for tests.
type memThreads struct {
	mu       sync.Mutex
	turns    map[string]int
	messages map[string][]domain.Message
}

func newMemThreads() *memThreads {
	return &memThreads{turns: make(map[string]int), messages: make(map[string][]domain.Message)}
}

func (m *memThreads) EnsureThread(_ context.Context, threadID string) (*domain.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.turns[threadID]; !ok {
		m.turns[threadID] = 0
	}
	return &domain.Thread{ThreadID: threadID, CurrentTurn: m.turns[threadID]}, nil
}

func (m *memThreads) NextTurn(_ context.Context, threadID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[threadID]++
	return m.turns[threadID], nil
}

func (m *memThreads) AppendMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ThreadID] = append(m.messages[msg.ThreadID], msg)
	return nil
}

func (m *memThreads) ListRecentMessages(_ context.Context, threadID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages[threadID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

type fakeAudit struct {
	mu     sync.Mutex
	audits []domain.TurnAudit
}

func (f *fakeAudit) PublishTurnCompleted(_ context.Context, audit domain.TurnAudit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, audit)
	return nil
}

// newTestRun builds a flowRun wired to fakes. Steps run synchronously
// in tests, so the buffered channel is drained afterwards with the
// returned function.
func newTestRun(t *testing.T, tools *fakeToolExecutor, model *fakeModel) (*flowRun, func() []domain.EmittedEvent) {
	t.Helper()
	out := make(chan domain.EmittedEvent, 128)
	sink := newEventSink(context.Background(), out)
	run := &flowRun{
		deps:  &turnDeps{tools: tools, model: model, cfg: TurnConfig{}.normalize()},
		state: domain.NewConversationState(),
		sink:  sink,
	}
	var events []domain.EmittedEvent
	drain := func() []domain.EmittedEvent {
		for {
			select {
			case ev := <-out:
				events = append(events, ev)
			default:
				return events
			}
		}
	}
	return run, drain
}

func eventTexts(events []domain.EmittedEvent) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == domain.EventTextDelta {
			out = append(out, ev.Text)
		}
	}
	return out
}

func actionsByName(events []domain.EmittedEvent, name string) []domain.EmittedEvent {
	var out []domain.EmittedEvent
	for _, ev := range events {
		if ev.Type == domain.EventToolInput && ev.ToolName == name {
			out = append(out, ev)
		}
	}
	return out
}

func containsText(events []domain.EmittedEvent, substr string) bool {
	for _, text := range eventTexts(events) {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}
