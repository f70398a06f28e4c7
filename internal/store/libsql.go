package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/stepflow/pkg/schema"
)

// LibSQLStore implements Store on libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/stepflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return migrate(ctx, sqlTarget(s.db))
}

// --- Workflows ---

const workflowSelect = `SELECT id, user_id, name, trigger_kind, trigger_config, enabled, steps, created_at, updated_at FROM workflows`

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	cols, err := encodeWorkflow(wf)
	if err != nil {
		return wrapStore("create workflow", err)
	}
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	wf.UpdatedAt = timeOrNow(wf.UpdatedAt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, user_id, name, trigger_kind, trigger_config, enabled, steps, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.UserID, wf.Name, string(wf.TriggerKind), cols.triggerConfig, boolInt(wf.Enabled), cols.steps,
		wf.CreatedAt, wf.UpdatedAt,
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
	}
	return wrapStore("create workflow", err)
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf, err := scanWorkflow(s.db.QueryRowContext(ctx, workflowSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, wrapStore("get workflow", err)
	}
	return wf, nil
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	cols, err := encodeWorkflow(wf)
	if err != nil {
		return wrapStore("update workflow", err)
	}
	wf.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET user_id = ?, name = ?, trigger_kind = ?, trigger_config = ?, enabled = ?, steps = ?, updated_at = ?
		 WHERE id = ?`,
		wf.UserID, wf.Name, string(wf.TriggerKind), cols.triggerConfig, boolInt(wf.Enabled), cols.steps, wf.UpdatedAt, wf.ID,
	)
	if err != nil {
		return wrapStore("update workflow", err)
	}
	return checkRowsAffected(res, "workflow", wf.ID)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var where []string
	var args []any

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.TriggerKind != "" {
		where = append(where, "trigger_kind = ?")
		args = append(args, string(filter.TriggerKind))
	}
	if filter.Enabled != nil {
		where = append(where, "enabled = ?")
		args = append(args, boolInt(*filter.Enabled))
	}

	query := workflowSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id" + limitClause(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStore("list workflows", err)
	}
	defer rows.Close()

	var out []*schema.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, wrapStore("list workflows", err)
		}
		out = append(out, wf)
	}
	return out, wrapStore("list workflows", rows.Err())
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return wrapStore("delete workflow", err)
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Runs ---

const runSelect = `SELECT id, workflow_id, status, current_step, context, error, started_at, completed_at FROM workflow_runs`

func (s *LibSQLStore) CreateRun(ctx context.Context, run *schema.WorkflowRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Status == "" {
		run.Status = schema.RunStatusRunning
	}
	if run.Context == nil {
		run.Context = map[string]any{}
	}
	runCtx, err := marshalOr(run.Context, "{}")
	if err != nil {
		return wrapStore("create run", fmt.Errorf("marshal context: %w", err))
	}
	run.StartedAt = timeOrNow(run.StartedAt)

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, status, current_step, context, error, started_at, completed_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, string(run.Status), run.CurrentStep, runCtx, nullStrPtr(run.Error),
		run.StartedAt, nullTime(run.CompletedAt), time.Now().UTC(),
	)
	return wrapStore("create run", err)
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.WorkflowRun, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, wrapStore("get run", err)
	}
	return run, nil
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentStep != nil {
		sets = append(sets, "current_step = ?")
		args = append(args, *update.CurrentStep)
	}
	if update.Context != nil {
		raw, err := marshalOr(update.Context, "{}")
		if err != nil {
			return wrapStore("update run", fmt.Errorf("marshal context: %w", err))
		}
		sets = append(sets, "context = ?")
		args = append(args, raw)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *update.Error)
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id, string(schema.RunStatusRunning))

	query := fmt.Sprintf("UPDATE workflow_runs SET %s WHERE id = ? AND status = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapStore("update run", err)
	}
	return s.explainNoop(ctx, res, id)
}

func (s *LibSQLStore) CancelRun(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(schema.RunStatusCancelled), now, now, id, string(schema.RunStatusRunning),
	)
	if err != nil {
		return wrapStore("cancel run", err)
	}
	return s.explainNoop(ctx, res, id)
}

// explainNoop turns a zero-row conditional update into NOT_FOUND or CONFLICT.
func (s *LibSQLStore) explainNoop(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore("rows affected", err)
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM workflow_runs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return storeNotFound("run", id)
	}
	if err != nil {
		return wrapStore("read run status", err)
	}
	return runNotRunning(id, schema.RunStatus(status))
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.WorkflowRun, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "started_at >= ?")
		args = append(args, *filter.Since)
	}

	query := runSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id" + limitClause(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapStore("list runs", err)
	}
	defer rows.Close()

	var out []*schema.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, wrapStore("list runs", err)
		}
		out = append(out, run)
	}
	return out, wrapStore("list runs", rows.Err())
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var (
		triggerKind, triggerConfig, steps string
		enabled                           int64
	)
	if err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &triggerKind, &triggerConfig, &enabled, &steps,
		&wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.TriggerKind = schema.TriggerKind(triggerKind)
	wf.Enabled = enabled != 0
	if err := decodeWorkflow(wf, []byte(triggerConfig), []byte(steps)); err != nil {
		return nil, err
	}
	return wf, nil
}

func scanRun(row rowScanner) (*schema.WorkflowRun, error) {
	run := &schema.WorkflowRun{}
	var (
		status, runCtx string
		errMsg         sql.NullString
		completedAt    sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.WorkflowID, &status, &run.CurrentStep, &runCtx, &errMsg,
		&run.StartedAt, &completedAt); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	if errMsg.Valid {
		run.Error = &errMsg.String
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	decoded, err := decodeContext([]byte(runCtx))
	if err != nil {
		return nil, err
	}
	run.Context = decoded
	return run, nil
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return wrapStore("rows affected", err)
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func limitClause(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	s := fmt.Sprintf(" LIMIT %d", limit)
	if offset > 0 {
		s += fmt.Sprintf(" OFFSET %d", offset)
	}
	return s
}

var _ Store = (*LibSQLStore)(nil)
