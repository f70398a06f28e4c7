package schema

import (
	"encoding/json"
	"time"
)

// DefaultDelay is used by delay steps that omit duration_ms.
const DefaultDelay = 1000 * time.Millisecond

// DefaultWebhookMethod is used by webhook steps that omit method.
const DefaultWebhookMethod = "POST"

// StepConfig is the typed configuration of one step kind.
// Exactly one concrete type exists per StepType.
type StepConfig interface {
	StepType() StepType
	Validate() error
}

// AgentCallConfig configures an agent_call step.
type AgentCallConfig struct {
	AgentID    string `json:"agent_id,omitempty"`
	SessionKey string `json:"session_key,omitempty"`
	Message    string `json:"message"`
	TimeoutMs  int    `json:"timeout_ms,omitempty"`
}

func (c *AgentCallConfig) StepType() StepType { return StepTypeAgentCall }

func (c *AgentCallConfig) Validate() error {
	if c.Message == "" {
		return NewError(ErrCodeValidation, "agent_call step requires config.message")
	}
	return nil
}

// ConditionConfig configures a condition step. OnTrue and OnFalse are the
// only branch targets the executor honors.
type ConditionConfig struct {
	Expression string `json:"expression"`
	OnTrue     string `json:"on_true,omitempty"`
	OnFalse    string `json:"on_false,omitempty"`
	// Language selects the evaluator: "" (restricted comparison), "expr" or "cel".
	Language string `json:"language,omitempty"`
}

func (c *ConditionConfig) StepType() StepType { return StepTypeCondition }

func (c *ConditionConfig) Validate() error {
	if c.Expression == "" {
		return NewError(ErrCodeValidation, "condition step requires config.expression")
	}
	switch c.Language {
	case "", "expr", "cel":
	default:
		return NewErrorf(ErrCodeValidation, "condition step has unknown language %q", c.Language)
	}
	return nil
}

// TransformConfig configures a transform step.
type TransformConfig struct {
	// Mappings maps an output key to a dot-separated context path.
	Mappings map[string]string `json:"mappings,omitempty"`
	// Query is an optional jq program evaluated against the context.
	Query string `json:"query,omitempty"`
}

func (c *TransformConfig) StepType() StepType { return StepTypeTransform }
func (c *TransformConfig) Validate() error    { return nil }

// DelayConfig configures a delay step.
type DelayConfig struct {
	DurationMs *int `json:"duration_ms,omitempty"`
}

func (c *DelayConfig) StepType() StepType { return StepTypeDelay }

func (c *DelayConfig) Validate() error { return nil }

// Duration returns the configured delay, or DefaultDelay. A negative
// duration_ms means no delay.
func (c *DelayConfig) Duration() time.Duration {
	if c.DurationMs == nil {
		return DefaultDelay
	}
	return time.Duration(max(*c.DurationMs, 0)) * time.Millisecond
}

// WebhookConfig configures a webhook step.
type WebhookConfig struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      any               `json:"body,omitempty"`
	TimeoutMs int               `json:"timeout_ms,omitempty"`
}

func (c *WebhookConfig) StepType() StepType { return StepTypeWebhook }

func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return NewError(ErrCodeValidation, "webhook step requires config.url")
	}
	return nil
}

// SetContextConfig configures a set_context step.
type SetContextConfig struct {
	Values map[string]any `json:"values,omitempty"`
}

func (c *SetContextConfig) StepType() StepType { return StepTypeSetContext }
func (c *SetContextConfig) Validate() error    { return nil }

// NewStepConfig returns an empty config value for the given step type.
func NewStepConfig(t StepType) (StepConfig, error) {
	switch t {
	case StepTypeAgentCall:
		return &AgentCallConfig{}, nil
	case StepTypeCondition:
		return &ConditionConfig{}, nil
	case StepTypeTransform:
		return &TransformConfig{}, nil
	case StepTypeDelay:
		return &DelayConfig{}, nil
	case StepTypeWebhook:
		return &WebhookConfig{}, nil
	case StepTypeSetContext:
		return &SetContextConfig{}, nil
	default:
		return nil, NewErrorf(ErrCodeValidation, "unknown step type %q", t)
	}
}

// DecodeConfig converts the step's untyped config map into its typed
// variant and checks the required fields.
func DecodeConfig(step Step) (StepConfig, error) {
	cfg, err := NewStepConfig(step.Type)
	if err != nil {
		return nil, err.(*Error).WithStep(step.ID)
	}
	if len(step.Config) > 0 {
		raw, err := json.Marshal(step.Config)
		if err != nil {
			return nil, NewErrorf(ErrCodeValidation, "encode %s config: %s", step.Type, err.Error()).
				WithStep(step.ID).WithCause(err)
		}
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, NewErrorf(ErrCodeValidation, "invalid %s config: %s", step.Type, err.Error()).
				WithStep(step.ID).WithCause(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		var se *Error
		if e, ok := err.(*Error); ok {
			se = e
		} else {
			se = NewError(ErrCodeValidation, err.Error()).WithCause(err)
		}
		return nil, se.WithStep(step.ID)
	}
	return cfg, nil
}
