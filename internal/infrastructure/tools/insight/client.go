// Package insight is the HTTP client for the solar analytics service
// that backs every tool the assistant can call.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/heliowatt/solar-copilot/internal/core/domain"
	"github.com/heliowatt/solar-copilot/internal/core/ports"
	"github.com/heliowatt/solar-copilot/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

var _ ports.ToolExecutor = (*Client)(nil)

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

// Execute invokes POST {base}/tools/{name}. A remote failure of any
// kind is reported as an error-status ToolResponse, never as a Go
// error; the error return is reserved for caller misuse.
func (c *Client) Execute(ctx context.Context, name string, args map[string]any) (domain.ToolResponse, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ToolResponse{}, domain.WrapError(domain.ErrInvalidInput, "execute tool", errEmptyToolName)
	}

	var resp domain.ToolResponse
	call := func(ctx context.Context) error {
		var err error
		resp, err = c.post(ctx, name, args)
		return err
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "insight."+name, call, classifyInsightError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return domain.ToolResponse{
			Status:  domain.StatusError,
			Message: "The analytics service could not be reached.",
		}, nil
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, name string, args map[string]any) (domain.ToolResponse, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return domain.ToolResponse{}, fmt.Errorf("marshal %s args: %w", name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tools/"+name, bytes.NewReader(body))
	if err != nil {
		return domain.ToolResponse{}, fmt.Errorf("create %s request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ToolResponse{}, fmt.Errorf("insight %s request: %w", name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		return domain.ToolResponse{}, &HTTPStatusError{
			Operation:  name,
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}

	var resp domain.ToolResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return domain.ToolResponse{}, fmt.Errorf("decode %s response: %w", name, err)
	}
	if resp.Status == "" {
		resp.Status = domain.StatusOK
	}
	return resp, nil
}
