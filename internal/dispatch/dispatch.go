// Package dispatch delivers agent_call messages to an agent runtime.
package dispatch

import (
	"context"
	"fmt"
)

// Request is one message for an agent. TimeoutMs is a hint the
// implementation may honor as a deadline.
type Request struct {
	AgentID    string `json:"agent_id,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
	Message    string `json:"message"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

// Dispatcher sends a request and returns the agent's textual reply.
// Routing, retries and transport belong to the implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (string, error)
}

// Simulated acknowledges every message without contacting a runtime.
type Simulated struct{}

func (Simulated) Dispatch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	agent := req.AgentID
	if agent == "" {
		agent = "default"
	}
	return fmt.Sprintf("[simulated] agent %s received: %s", agent, req.Message), nil
}

var _ Dispatcher = Simulated{}
