// Package ollama adapts a local Ollama chat endpoint to the
// LanguageModel port, including tool calling and NDJSON streaming.
package ollama

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient httpDoer
	executor   *resilience.Executor
}

var _ ports.LanguageModel = (*Client)(nil)

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, model string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: newHTTPClient(timeout),
		executor:   options.Executor,
	}
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatToolCall struct {
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type chatTool struct {
	Type     string           `json:"type"`
	Function chatToolSpecFunc `json:"function"`
}

type chatToolSpecFunc struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

// Invoke runs one non-streamed chat completion.
func (c *Client) Invoke(ctx context.Context, req domain.ModelRequest) (*domain.ModelOutput, error) {
	payload := c.buildPayload(req, false)

	var response chatResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/chat", payload, &response, "chat")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.chat", call, classifyOllamaError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapModelError("chat", err)
	}
	return c.parseOutput(response.Message, req.Tools), nil
}

// Stream runs one streamed chat completion, calling fn per chunk, and
// returns the assembled output. Tool calls arrive whole, not as deltas.
func (c *Client) Stream(ctx context.Context, req domain.ModelRequest, fn func(domain.ModelChunk) error) (*domain.ModelOutput, error) {
	payload := c.buildPayload(req, true)
	kinds := kindIndex(req.Tools)

	var text strings.Builder
	var calls []domain.ToolCall
	handle := func(line []byte) error {
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return err
		}
		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			if fn != nil {
				if err := fn(domain.ModelChunk{TextDelta: chunk.Message.Content}); err != nil {
					return err
				}
			}
		}
		for _, tc := range chunk.Message.ToolCalls {
			call := domain.ToolCall{
				ID:   uuid.NewString(),
				Name: tc.Function.Name,
				Args: tc.Function.Arguments,
				Kind: callKind(kinds, tc.Function.Name),
			}
			calls = append(calls, call)
			if fn != nil {
				if err := fn(domain.ModelChunk{ToolCall: &call}); err != nil {
					return err
				}
			}
		}
		return nil
	}

	stream := func(ctx context.Context) error {
		return c.postStream(ctx, "/api/chat", payload, handle, "chat_stream")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.chat_stream", stream, classifyOllamaError)
	} else {
		err = stream(ctx)
	}
	if err != nil {
		return nil, wrapModelError("chat stream", err)
	}
	return &domain.ModelOutput{Text: strings.TrimSpace(text.String()), ToolCalls: calls}, nil
}

func (c *Client) buildPayload(req domain.ModelRequest, stream bool) map[string]any {
	messages := make([]chatMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	payload := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   stream,
	}
	if len(req.Tools) > 0 {
		tools := make([]chatTool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, chatTool{
				Type: "function",
				Function: chatToolSpecFunc{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			})
		}
		payload["tools"] = tools
	}
	return payload
}

// parseOutput tags every returned tool call with the kind declared in
// the request's tool specs, so callers can route on the enum rather
// than on names.
func (c *Client) parseOutput(msg chatMessage, specs []domain.ToolSpec) *domain.ModelOutput {
	kinds := kindIndex(specs)
	out := &domain.ModelOutput{Text: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
			ID:   uuid.NewString(),
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
			Kind: callKind(kinds, tc.Function.Name),
		})
	}
	return out
}

func kindIndex(specs []domain.ToolSpec) map[string]domain.ActionKind {
	kinds := make(map[string]domain.ActionKind, len(specs))
	for _, s := range specs {
		kinds[s.Name] = s.Kind
	}
	return kinds
}

// callKind resolves a returned call's kind from the request's tool
// specs. Models occasionally invent names that were never offered;
// those fall back to the name-based classification so they are still
// treated as executable.
func callKind(kinds map[string]domain.ActionKind, name string) domain.ActionKind {
	if k, ok := kinds[name]; ok && k != "" {
		return k
	}
	return domain.KindForAction(name)
}
