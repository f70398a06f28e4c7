package engine

import (
	"testing"
	"time"

	"github.com/rendis/stepflow/pkg/schema"
	"github.com/stretchr/testify/assert"
)

func TestWithTrigger(t *testing.T) {
	initial := map[string]any{"name": "Ada"}
	fired := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	out := WithTrigger(initial, Trigger{
		Kind:    schema.TriggerSchedule,
		FiredAt: fired,
		Payload: map[string]any{"cron": "0 9 * * *", "kind": "spoofed"},
	})

	assert.Equal(t, "Ada", out["name"])
	assert.NotContains(t, initial, schema.ContextKeyTrigger, "input must not be mutated")
	meta := out[schema.ContextKeyTrigger].(map[string]any)
	assert.Equal(t, "schedule", meta["kind"])
	assert.Equal(t, "2026-03-01T09:00:00Z", meta["fired_at"])
	assert.Equal(t, "0 9 * * *", meta["cron"])
}

func TestWithTrigger_NilInitial(t *testing.T) {
	out := WithTrigger(nil, Trigger{Kind: schema.TriggerManual})
	meta := out[schema.ContextKeyTrigger].(map[string]any)
	assert.Equal(t, "manual", meta["kind"])
	assert.NotEmpty(t, meta["fired_at"])
}
