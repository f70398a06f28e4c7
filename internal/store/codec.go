package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func runNotRunning(id string, status schema.RunStatus) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeConflict, "run %q is %s", id, status).
		WithDetails(map[string]any{"run_id": id, "status": string(status)})
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStrPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// marshalOr encodes v as JSON, substituting def for a nil value.
func marshalOr(v any, def string) (string, error) {
	if v == nil {
		return def, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return def, nil
	}
	return string(raw), nil
}

// workflowColumns is the JSON-encoded form of a workflow's structured fields.
type workflowColumns struct {
	triggerConfig string
	steps         string
}

func encodeWorkflow(wf *schema.Workflow) (workflowColumns, error) {
	tc, err := marshalOr(wf.TriggerConfig, "{}")
	if err != nil {
		return workflowColumns{}, fmt.Errorf("marshal trigger_config: %w", err)
	}
	steps, err := marshalOr(wf.Steps, "[]")
	if err != nil {
		return workflowColumns{}, fmt.Errorf("marshal steps: %w", err)
	}
	return workflowColumns{triggerConfig: tc, steps: steps}, nil
}

func decodeWorkflow(wf *schema.Workflow, triggerConfig, steps []byte) error {
	if len(triggerConfig) > 0 {
		if err := json.Unmarshal(triggerConfig, &wf.TriggerConfig); err != nil {
			return fmt.Errorf("unmarshal trigger_config: %w", err)
		}
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &wf.Steps); err != nil {
			return fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	if wf.Steps == nil {
		wf.Steps = []schema.Step{}
	}
	return nil
}

func decodeContext(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func wrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*schema.Error); ok {
		return err
	}
	return schema.NewErrorf(schema.ErrCodeStore, "%s: %s", op, err.Error()).WithCause(err)
}
