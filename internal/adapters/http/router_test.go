package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
)

type fakeTurnService struct {
	events   []domain.EmittedEvent
	err      error
	threadID string
	messages []domain.Message
}

func (f *fakeTurnService) RunTurn(ctx context.Context, threadID string, messages []domain.Message) (<-chan domain.EmittedEvent, error) {
	f.threadID = threadID
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.EmittedEvent, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

func postTurn(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/turns", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func sseFrames(t *testing.T, body string) []string {
	t.Helper()
	var frames []string
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("frame without data prefix: %q", block)
		}
		frames = append(frames, strings.TrimPrefix(block, "data: "))
	}
	return frames
}

func TestRunTurnStreamsEventsAsSSE(t *testing.T) {
	service := &fakeTurnService{events: []domain.EmittedEvent{
		{Type: domain.EventTextDelta, Text: "All 12 loggers are online."},
		{Type: domain.EventToolInput, ToolCallID: "c1", ToolName: "get_fleet_overview"},
	}}
	router := NewRouter(service, nil, nil)

	w := postTurn(t, router.Handler(), `{"thread_id":"t-1","messages":[{"role":"user","content":"status?"}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	frames := sseFrames(t, w.Body.String())
	if len(frames) != 3 {
		t.Fatalf("frames = %d, want 3: %v", len(frames), frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want [DONE]", frames[len(frames)-1])
	}

	var first domain.EmittedEvent
	if err := json.Unmarshal([]byte(frames[0]), &first); err != nil {
		t.Fatalf("decode first frame: %v", err)
	}
	if first.Type != domain.EventTextDelta || first.Text != "All 12 loggers are online." {
		t.Errorf("first frame = %+v", first)
	}

	if service.threadID != "t-1" {
		t.Errorf("threadID = %q", service.threadID)
	}
	if len(service.messages) != 1 || service.messages[0].Role != domain.RoleUser {
		t.Errorf("messages = %+v", service.messages)
	}
}

func TestRunTurnRejectsEmptyMessages(t *testing.T) {
	router := NewRouter(&fakeTurnService{}, nil, nil)
	w := postTurn(t, router.Handler(), `{"thread_id":"t-1","messages":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRunTurnRejectsInvalidJSON(t *testing.T) {
	router := NewRouter(&fakeTurnService{}, nil, nil)
	w := postTurn(t, router.Handler(), `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRunTurnMapsInvalidInputError(t *testing.T) {
	service := &fakeTurnService{err: domain.WrapError(domain.ErrInvalidInput, "run turn", errors.New("missing user message"))}
	router := NewRouter(service, nil, nil)
	w := postTurn(t, router.Handler(), `{"messages":[{"role":"assistant","content":"hi"}]}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestRunTurnMethodNotAllowed(t *testing.T) {
	router := NewRouter(&fakeTurnService{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/turns", nil)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := NewRouter(&fakeTurnService{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestRequestIDEchoedInResponse(t *testing.T) {
	router := NewRouter(&fakeTurnService{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "req-42" {
		t.Errorf("request id = %q, want req-42", got)
	}
}
