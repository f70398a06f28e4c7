package engine

import (
	"maps"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
)

// Trigger describes what started a run.
type Trigger struct {
	Kind    schema.TriggerKind
	FiredAt time.Time
	Payload map[string]any
}

// WithTrigger returns a copy of initial with trigger metadata under _trigger:
// {kind, fired_at, ...payload}. Payload keys never override kind or fired_at.
func WithTrigger(initial map[string]any, t Trigger) map[string]any {
	out := schema.CloneContext(initial)
	firedAt := t.FiredAt
	if firedAt.IsZero() {
		firedAt = time.Now().UTC()
	}

	meta := make(map[string]any, len(t.Payload)+2)
	maps.Copy(meta, t.Payload)
	meta["kind"] = string(t.Kind)
	meta["fired_at"] = firedAt.Format(time.RFC3339Nano)
	out[schema.ContextKeyTrigger] = meta
	return out
}
