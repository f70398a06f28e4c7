package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

const (
	defaultGatewayTimeout = 60 * time.Second
	maxGatewayReply       = 1 << 20
)

// HTTPGateway posts requests as JSON to an agent runtime endpoint.
//
// A JSON reply with a "response" (or "reply") string field yields that
// field; any other 2xx body is returned verbatim.
type HTTPGateway struct {
	URL     string
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPGateway creates a gateway for url. A zero timeout selects 60s.
func NewHTTPGateway(url string, timeout time.Duration) *HTTPGateway {
	if timeout <= 0 {
		timeout = defaultGatewayTimeout
	}
	return &HTTPGateway{URL: url, Client: &http.Client{}, Timeout: timeout}
}

func (g *HTTPGateway) Dispatch(ctx context.Context, req Request) (string, error) {
	timeout := g.Timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution, "encode agent request: %s", err.Error()).WithCause(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(payload))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "invalid agent gateway url: %s", err.Error()).WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", schema.NewErrorf(schema.ErrCodeTimeout, "agent call timed out after %s", timeout).WithCause(err)
		}
		return "", schema.NewErrorf(schema.ErrCodeExecution, "agent dispatch failed: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayReply))
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeExecution, "read agent reply: %s", err.Error()).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", schema.NewErrorf(schema.ErrCodeExecution, "agent gateway returned status %d", resp.StatusCode).
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(body)})
	}

	var reply struct {
		Response *string `json:"response"`
		Reply    *string `json:"reply"`
	}
	if json.Unmarshal(body, &reply) == nil {
		if reply.Response != nil {
			return *reply.Response, nil
		}
		if reply.Reply != nil {
			return *reply.Reply, nil
		}
	}
	return strings.TrimSpace(string(body)), nil
}

var _ Dispatcher = (*HTTPGateway)(nil)
