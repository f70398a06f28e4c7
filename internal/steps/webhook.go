package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/stepflow/internal/expressions"
	"github.com/rendis/stepflow/pkg/schema"
)

const (
	defaultMaxResponseBody = 10 * 1024 * 1024 // 10MB
	defaultWebhookTimeout  = 30 * time.Second
)

// WebhookConfig configures the webhook executor.
type WebhookConfig struct {
	Client          *http.Client
	DefaultTimeout  time.Duration
	MaxResponseBody int64
}

// WebhookExecutor issues one HTTP call per step. 2xx is success; any other
// status fails the step while still reporting {status, data}.
type WebhookExecutor struct {
	config WebhookConfig
}

func NewWebhookExecutor(cfg WebhookConfig) *WebhookExecutor {
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = defaultWebhookTimeout
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = defaultMaxResponseBody
	}
	return &WebhookExecutor{config: cfg}
}

func (e *WebhookExecutor) Type() schema.StepType { return schema.StepTypeWebhook }

func (e *WebhookExecutor) Execute(ctx context.Context, step schema.Step, runCtx map[string]any) Result {
	cfg, err := decode[*schema.WebhookConfig](step)
	if err != nil {
		return fail(err)
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = schema.DefaultWebhookMethod
	}
	url := expressions.InterpolateString(cfg.URL, runCtx)

	var body io.Reader
	if cfg.Body != nil {
		resolved, err := expressions.InterpolateJSON(cfg.Body, runCtx)
		if err != nil {
			return fail(err)
		}
		raw, err := json.Marshal(resolved)
		if err != nil {
			return fail(fmt.Errorf("encode webhook body: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	timeout := e.config.DefaultTimeout
	if cfg.TimeoutMs > 0 {
		timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return fail(fmt.Errorf("invalid webhook request: %w", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.config.Client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fail(fmt.Errorf("webhook timed out after %s", timeout))
		}
		return fail(fmt.Errorf("webhook request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, e.config.MaxResponseBody))
	if err != nil {
		return fail(fmt.Errorf("read webhook response: %w", err))
	}

	var data any
	if len(raw) > 0 && json.Unmarshal(raw, &data) != nil {
		data = nil
	}
	out := map[string]any{"status": resp.StatusCode, "data": data}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Output: out, Error: fmt.Sprintf("webhook returned status %d", resp.StatusCode)}
	}
	return succeed(out)
}
