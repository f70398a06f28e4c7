package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rendis/stepflow/internal/store"
	"github.com/rendis/stepflow/pkg/schema"
)

// mockStore is an in-memory Store. Contexts are JSON round-tripped like a
// real backend would.
type mockStore struct {
	store.Store

	mu          sync.Mutex
	workflows   map[string]*schema.Workflow
	runs        map[string]*schema.WorkflowRun
	seq         int
	checkpoints []checkpoint

	// failCheckpoint makes step checkpoints (updates without a status) fail.
	failCheckpoint error
}

type checkpoint struct {
	step int
	at   time.Time
}

func newMockStore() *mockStore {
	return &mockStore{
		workflows: make(map[string]*schema.Workflow),
		runs:      make(map[string]*schema.WorkflowRun),
	}
}

func (m *mockStore) addWorkflow(wf *schema.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = wf
}

func (m *mockStore) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
	}
	cp := *wf
	return &cp, nil
}

func (m *mockStore) CreateRun(_ context.Context, run *schema.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if run.ID == "" {
		run.ID = fmt.Sprintf("run-%d", m.seq)
	}
	m.runs[run.ID] = cloneRun(run)
	return nil
}

func (m *mockStore) GetRun(_ context.Context, id string) (*schema.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	return cloneRun(run), nil
}

func (m *mockStore) UpdateRun(_ context.Context, id string, u store.RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	if run.Status != schema.RunStatusRunning {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q is %s", id, run.Status)
	}
	if u.Status == nil && m.failCheckpoint != nil {
		return m.failCheckpoint
	}
	if u.Status != nil {
		run.Status = *u.Status
	}
	if u.CurrentStep != nil {
		run.CurrentStep = *u.CurrentStep
		if u.Status == nil {
			m.checkpoints = append(m.checkpoints, checkpoint{step: *u.CurrentStep, at: time.Now()})
		}
	}
	if u.Context != nil {
		run.Context = jsonClone(u.Context)
	}
	if u.Error != nil {
		e := *u.Error
		run.Error = &e
	}
	if u.CompletedAt != nil {
		t := *u.CompletedAt
		run.CompletedAt = &t
	}
	return nil
}

func (m *mockStore) CancelRun(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", id)
	}
	if run.Status != schema.RunStatusRunning {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q is %s", id, run.Status)
	}
	now := time.Now().UTC()
	run.Status = schema.RunStatusCancelled
	run.CompletedAt = &now
	return nil
}

func (m *mockStore) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func (m *mockStore) checkpointLog() []checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkpoint(nil), m.checkpoints...)
}

func cloneRun(r *schema.WorkflowRun) *schema.WorkflowRun {
	cp := *r
	cp.Context = jsonClone(r.Context)
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	return &cp
}

func jsonClone(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(err)
	}
	return out
}
