package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/stepflow/pkg/schema"
)

// runStoreSuite exercises the Store contract against any backend.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("workflow roundtrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		wf := sampleWorkflow("wf-roundtrip")
		require.NoError(t, s.CreateWorkflow(ctx, wf))

		got, err := s.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, wf.ID, got.ID)
		assert.Equal(t, "u1", got.UserID)
		assert.Equal(t, "Greeter", got.Name)
		assert.Equal(t, schema.TriggerSchedule, got.TriggerKind)
		assert.Equal(t, "*/5 * * * *", got.TriggerConfig["cron"])
		assert.True(t, got.Enabled)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, "s1", got.Steps[0].ID)
		assert.Equal(t, schema.StepTypeSetContext, got.Steps[0].Type)
		assert.Equal(t, "s1.greeting", got.Steps[1].Config["mappings"].(map[string]any)["out"])
	})

	t.Run("workflow duplicate id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateWorkflow(ctx, sampleWorkflow("wf-dup")))
		err := s.CreateWorkflow(ctx, sampleWorkflow("wf-dup"))
		assert.True(t, schema.IsCode(err, schema.ErrCodeConflict), "got %v", err)
	})

	t.Run("workflow not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetWorkflow(context.Background(), "missing")
		assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	})

	t.Run("workflow update and delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		wf := sampleWorkflow("wf-upd")
		require.NoError(t, s.CreateWorkflow(ctx, wf))

		wf.Name = "Renamed"
		wf.Enabled = false
		require.NoError(t, s.UpdateWorkflow(ctx, wf))
		got, err := s.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.False(t, got.Enabled)

		require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
		assert.True(t, schema.IsCode(s.DeleteWorkflow(ctx, wf.ID), schema.ErrCodeNotFound))
		assert.True(t, schema.IsCode(s.UpdateWorkflow(ctx, wf), schema.ErrCodeNotFound))
	})

	t.Run("list workflows filters", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := sampleWorkflow("wf-a")
		b := sampleWorkflow("wf-b")
		b.TriggerKind = schema.TriggerManual
		c := sampleWorkflow("wf-c")
		c.Enabled = false
		c.UserID = "u2"
		for _, wf := range []*schema.Workflow{a, b, c} {
			require.NoError(t, s.CreateWorkflow(ctx, wf))
		}

		all, err := s.ListWorkflows(ctx, WorkflowFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		enabled := true
		sched, err := s.ListWorkflows(ctx, WorkflowFilter{TriggerKind: schema.TriggerSchedule, Enabled: &enabled})
		require.NoError(t, err)
		require.Len(t, sched, 1)
		assert.Equal(t, "wf-a", sched[0].ID)

		byUser, err := s.ListWorkflows(ctx, WorkflowFilter{UserID: "u2"})
		require.NoError(t, err)
		require.Len(t, byUser, 1)
		assert.Equal(t, "wf-c", byUser[0].ID)

		limited, err := s.ListWorkflows(ctx, WorkflowFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})

	t.Run("run lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateWorkflow(ctx, sampleWorkflow("wf-run")))

		run := &schema.WorkflowRun{WorkflowID: "wf-run", Context: map[string]any{"name": "Ada"}}
		require.NoError(t, s.CreateRun(ctx, run))
		require.NotEmpty(t, run.ID)
		assert.Equal(t, schema.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, schema.RunStatusRunning, got.Status)
		assert.Equal(t, 0, got.CurrentStep)
		assert.Equal(t, map[string]any{"name": "Ada"}, got.Context)
		assert.Nil(t, got.Error)
		assert.Nil(t, got.CompletedAt)

		step := 1
		require.NoError(t, s.UpdateRun(ctx, run.ID, RunUpdate{
			CurrentStep: &step,
			Context:     map[string]any{"name": "Ada", "s1": map[string]any{"greeting": "hi Ada"}},
		}))
		got, err = s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.CurrentStep)
		assert.Equal(t, "hi Ada", got.Context["s1"].(map[string]any)["greeting"])

		failed := schema.RunStatusFailed
		msg := "webhook returned status 500"
		now := time.Now().UTC()
		require.NoError(t, s.UpdateRun(ctx, run.ID, RunUpdate{Status: &failed, Error: &msg, CompletedAt: &now}))

		got, err = s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, schema.RunStatusFailed, got.Status)
		require.NotNil(t, got.Error)
		assert.Equal(t, msg, *got.Error)
		assert.NotNil(t, got.CompletedAt)

		// Terminal rows reject further updates.
		err = s.UpdateRun(ctx, run.ID, RunUpdate{CurrentStep: &step})
		assert.True(t, schema.IsCode(err, schema.ErrCodeConflict), "got %v", err)
		assert.True(t, schema.IsCode(s.CancelRun(ctx, run.ID), schema.ErrCodeConflict))

		err = s.UpdateRun(ctx, "missing", RunUpdate{CurrentStep: &step})
		assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	})

	t.Run("cancel run", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateWorkflow(ctx, sampleWorkflow("wf-cancel")))

		run := &schema.WorkflowRun{WorkflowID: "wf-cancel"}
		require.NoError(t, s.CreateRun(ctx, run))
		require.NoError(t, s.CancelRun(ctx, run.ID))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, schema.RunStatusCancelled, got.Status)
		assert.NotNil(t, got.CompletedAt)

		assert.True(t, schema.IsCode(s.CancelRun(ctx, run.ID), schema.ErrCodeConflict))
		assert.True(t, schema.IsCode(s.CancelRun(ctx, "missing"), schema.ErrCodeNotFound))
		_, err = s.GetRun(ctx, "missing")
		assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
	})

	t.Run("list runs", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		require.NoError(t, s.CreateWorkflow(ctx, sampleWorkflow("wf-x")))
		require.NoError(t, s.CreateWorkflow(ctx, sampleWorkflow("wf-y")))

		for i := 0; i < 3; i++ {
			require.NoError(t, s.CreateRun(ctx, &schema.WorkflowRun{WorkflowID: "wf-x"}))
		}
		other := &schema.WorkflowRun{WorkflowID: "wf-y"}
		require.NoError(t, s.CreateRun(ctx, other))
		require.NoError(t, s.CancelRun(ctx, other.ID))

		runs, err := s.ListRuns(ctx, RunFilter{WorkflowID: "wf-x"})
		require.NoError(t, err)
		assert.Len(t, runs, 3)

		cancelled := schema.RunStatusCancelled
		runs, err = s.ListRuns(ctx, RunFilter{Status: &cancelled})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, other.ID, runs[0].ID)

		runs, err = s.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})

	t.Run("migrate idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Migrate(context.Background()))
	})
}

func sampleWorkflow(id string) *schema.Workflow {
	return &schema.Workflow{
		ID:            id,
		UserID:        "u1",
		Name:          "Greeter",
		TriggerKind:   schema.TriggerSchedule,
		TriggerConfig: map[string]any{"cron": "*/5 * * * *"},
		Enabled:       true,
		Steps: []schema.Step{
			{ID: "s1", Type: schema.StepTypeSetContext, Config: map[string]any{"values": map[string]any{"greeting": "hi {{name}}"}}},
			{ID: "s2", Type: schema.StepTypeTransform, Config: map[string]any{"mappings": map[string]any{"out": "s1.greeting"}}},
		},
	}
}
