package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rendis/stepflow/pkg/schema"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// PostgresStore implements Store on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and returns a Store.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool. Close closes the pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies pending migrations, one transaction per version.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, pgxTarget(s.pool))
}

// --- Workflows ---

func (s *PostgresStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	cols, err := encodeWorkflow(wf)
	if err != nil {
		return wrapStore("create workflow", err)
	}
	wf.CreatedAt = timeOrNow(wf.CreatedAt)
	wf.UpdatedAt = timeOrNow(wf.UpdatedAt)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflows (id, user_id, name, trigger_kind, trigger_config, enabled, steps, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7::jsonb, $8, $9)`,
		wf.ID, wf.UserID, wf.Name, string(wf.TriggerKind), cols.triggerConfig, wf.Enabled, cols.steps,
		wf.CreatedAt, wf.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return schema.NewErrorf(schema.ErrCodeConflict, "workflow %q already exists", wf.ID).WithCause(err)
	}
	return wrapStore("create workflow", err)
}

func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf, err := scanPgWorkflow(s.pool.QueryRow(ctx, pgWorkflowSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, wrapStore("get workflow", err)
	}
	return wf, nil
}

func (s *PostgresStore) UpdateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	cols, err := encodeWorkflow(wf)
	if err != nil {
		return wrapStore("update workflow", err)
	}
	wf.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflows SET user_id = $1, name = $2, trigger_kind = $3, trigger_config = $4::jsonb, enabled = $5, steps = $6::jsonb, updated_at = $7
		 WHERE id = $8`,
		wf.UserID, wf.Name, string(wf.TriggerKind), cols.triggerConfig, wf.Enabled, cols.steps, wf.UpdatedAt, wf.ID,
	)
	if err != nil {
		return wrapStore("update workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound("workflow", wf.ID)
	}
	return nil
}

func (s *PostgresStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*schema.Workflow, error) {
	var q pgQuery
	if filter.UserID != "" {
		q.where("user_id", filter.UserID)
	}
	if filter.TriggerKind != "" {
		q.where("trigger_kind", string(filter.TriggerKind))
	}
	if filter.Enabled != nil {
		q.where("enabled", *filter.Enabled)
	}

	query := pgWorkflowSelect + q.clause() + " ORDER BY created_at DESC, id" + limitClause(filter.Limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, wrapStore("list workflows", err)
	}
	defer rows.Close()

	var out []*schema.Workflow
	for rows.Next() {
		wf, err := scanPgWorkflow(rows)
		if err != nil {
			return nil, wrapStore("list workflows", err)
		}
		out = append(out, wf)
	}
	return out, wrapStore("list workflows", rows.Err())
}

func (s *PostgresStore) DeleteWorkflow(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return wrapStore("delete workflow", err)
	}
	if tag.RowsAffected() == 0 {
		return storeNotFound("workflow", id)
	}
	return nil
}

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, run *schema.WorkflowRun) error {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, status, current_step, context, error, started_at, completed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, now())`,
		run.ID, run.WorkflowID, string(run.Status), run.CurrentStep, runCtx, run.Error, run.StartedAt, run.CompletedAt,
	)
	return wrapStore("create run", err)
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*schema.WorkflowRun, error) {
	run, err := scanPgRun(s.pool.QueryRow(ctx, pgRunSelect+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, wrapStore("get run", err)
	}
	return run, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if update.Status != nil {
		add("status", string(*update.Status))
	}
	if update.CurrentStep != nil {
		add("current_step", *update.CurrentStep)
	}
	if update.Context != nil {
		raw, err := marshalOr(update.Context, "{}")
		if err != nil {
			return wrapStore("update run", fmt.Errorf("marshal context: %w", err))
		}
		args = append(args, raw)
		sets = append(sets, fmt.Sprintf("context = $%d::jsonb", len(args)))
	}
	if update.Error != nil {
		add("error", *update.Error)
	}
	if update.CompletedAt != nil {
		add("completed_at", *update.CompletedAt)
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id, string(schema.RunStatusRunning))

	query := fmt.Sprintf("UPDATE workflow_runs SET %s WHERE id = $%d AND status = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrapStore("update run", err)
	}
	return s.explainNoop(ctx, tag, id)
}

func (s *PostgresStore) CancelRun(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_runs SET status = $1, completed_at = now(), updated_at = now() WHERE id = $2 AND status = $3`,
		string(schema.RunStatusCancelled), id, string(schema.RunStatusRunning),
	)
	if err != nil {
		return wrapStore("cancel run", err)
	}
	return s.explainNoop(ctx, tag, id)
}

func (s *PostgresStore) explainNoop(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM workflow_runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return storeNotFound("run", id)
	}
	if err != nil {
		return wrapStore("read run status", err)
	}
	return runNotRunning(id, schema.RunStatus(status))
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.WorkflowRun, error) {
	var q pgQuery
	if filter.WorkflowID != "" {
		q.where("workflow_id", filter.WorkflowID)
	}
	if filter.Status != nil {
		q.where("status", string(*filter.Status))
	}
	if filter.Since != nil {
		q.whereOp("started_at", ">=", *filter.Since)
	}

	query := pgRunSelect + q.clause() + " ORDER BY started_at DESC, id" + limitClause(filter.Limit, filter.Offset)
	rows, err := s.pool.Query(ctx, query, q.args...)
	if err != nil {
		return nil, wrapStore("list runs", err)
	}
	defer rows.Close()

	var out []*schema.WorkflowRun
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, wrapStore("list runs", err)
		}
		out = append(out, run)
	}
	return out, wrapStore("list runs", rows.Err())
}

// --- Helpers ---

const (
	pgWorkflowSelect = `SELECT id, user_id, name, trigger_kind, trigger_config::text, enabled, steps::text, created_at, updated_at FROM workflows`
	pgRunSelect      = `SELECT id, workflow_id, status, current_step, context::text, error, started_at, completed_at FROM workflow_runs`
)

// pgQuery accumulates WHERE conditions with numbered placeholders.
type pgQuery struct {
	conds []string
	args  []any
}

func (q *pgQuery) where(col string, v any) { q.whereOp(col, "=", v) }

func (q *pgQuery) whereOp(col, op string, v any) {
	q.args = append(q.args, v)
	q.conds = append(q.conds, fmt.Sprintf("%s %s $%d", col, op, len(q.args)))
}

func (q *pgQuery) clause() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

func scanPgWorkflow(row pgx.Row) (*schema.Workflow, error) {
	wf := &schema.Workflow{}
	var triggerKind, triggerConfig, steps string
	if err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &triggerKind, &triggerConfig, &wf.Enabled, &steps,
		&wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.TriggerKind = schema.TriggerKind(triggerKind)
	if err := decodeWorkflow(wf, []byte(triggerConfig), []byte(steps)); err != nil {
		return nil, err
	}
	return wf, nil
}

func scanPgRun(row pgx.Row) (*schema.WorkflowRun, error) {
	run := &schema.WorkflowRun{}
	var status, runCtx string
	if err := row.Scan(&run.ID, &run.WorkflowID, &status, &run.CurrentStep, &runCtx, &run.Error,
		&run.StartedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	decoded, err := decodeContext([]byte(runCtx))
	if err != nil {
		return nil, err
	}
	run.Context = decoded
	return run, nil
}

var _ Store = (*PostgresStore)(nil)
