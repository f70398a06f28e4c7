package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// BreakerState is the state of one agent's circuit.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls are rejected
	BreakerHalfOpen                     // one probe call is allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long an open circuit rejects calls before a probe.
	Cooldown time.Duration
}

type circuit struct {
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// Breaker wraps a Dispatcher with one circuit per agent id. A run whose
// agent is unreachable fails fast with CIRCUIT_OPEN instead of waiting for
// the transport timeout on every call.
type Breaker struct {
	next Dispatcher
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewBreaker wraps next. A non-positive threshold returns next unchanged.
func NewBreaker(next Dispatcher, cfg BreakerConfig) Dispatcher {
	if cfg.Threshold <= 0 {
		return next
	}
	return &Breaker{
		next:     next,
		cfg:      cfg,
		now:      time.Now,
		circuits: make(map[string]*circuit),
	}
}

func breakerKey(req Request) string {
	if req.AgentID == "" {
		return "default"
	}
	return req.AgentID
}

func (b *Breaker) Dispatch(ctx context.Context, req Request) (string, error) {
	key := breakerKey(req)
	if err := b.allow(key); err != nil {
		return "", err
	}
	reply, err := b.next.Dispatch(ctx, req)
	switch {
	case err == nil:
		b.recordSuccess(key)
	case ctx.Err() != nil:
		// The caller gave up; that says nothing about the agent.
		b.release(key)
	default:
		b.recordFailure(key)
	}
	return reply, err
}

func (b *Breaker) get(key string) *circuit {
	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	return c
}

func (b *Breaker) allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(key)

	switch c.state {
	case BreakerOpen:
		remaining := b.cfg.Cooldown - b.now().Sub(c.lastFailure)
		if remaining > 0 {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen,
				"agent %q unavailable after %d consecutive failures", key, c.failures).
				WithDetails(map[string]any{
					"agent_id":             key,
					"consecutive_failures": c.failures,
					"cooldown_remaining":   remaining.String(),
				})
		}
		c.state = BreakerHalfOpen
		c.probing = true
		return nil
	case BreakerHalfOpen:
		if c.probing {
			return schema.NewErrorf(schema.ErrCodeCircuitOpen, "agent %q is being probed", key).
				WithDetails(map[string]any{"agent_id": key})
		}
		c.probing = true
	}
	return nil
}

func (b *Breaker) recordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(key)
	c.state = BreakerClosed
	c.failures = 0
	c.probing = false
}

func (b *Breaker) recordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(key)
	c.failures++
	c.lastFailure = b.now()
	c.probing = false
	if c.state == BreakerHalfOpen || c.failures >= b.cfg.Threshold {
		c.state = BreakerOpen
	}
}

func (b *Breaker) release(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.get(key).probing = false
}

// State returns the circuit state for agentID.
func (b *Breaker) State(agentID string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.get(breakerKey(Request{AgentID: agentID}))
	if c.state == BreakerOpen && b.now().Sub(c.lastFailure) >= b.cfg.Cooldown {
		return BreakerHalfOpen
	}
	return c.state
}

var _ Dispatcher = (*Breaker)(nil)
