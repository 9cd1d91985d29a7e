package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/storage"
)

// Workflow jobs. Rows are scoped to their submitter.

func (s *Store) CreateWorkflowJob(ctx context.Context, job *api.WorkflowJob) error {
	payload := job.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO workflow_jobs (id, kind, asset_id, submitted_by, status, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		job.ID,
		job.Kind,
		nullIfEmpty(job.AssetID),
		job.SubmittedBy,
		string(job.Status),
		[]byte(payload),
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create workflow job: %w", err)
	}
	return nil
}

func (s *Store) GetWorkflowJob(ctx context.Context, id string, scope auth.Scope) (*api.WorkflowJob, error) {
	query := `
		SELECT id, kind, asset_id, submitted_by, status, payload, error, created_at, updated_at
		FROM workflow_jobs
		WHERE id = $1
	`
	args := []interface{}{id}
	if clause, clauseArgs := storage.ScopeClause(scope, "submitted_by", "", 2); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get workflow job: %w", err)
	}
	return job, nil
}

func (s *Store) ListWorkflowJobs(ctx context.Context, scope auth.Scope, limit, offset int) ([]*api.WorkflowJob, int64, error) {
	where := ""
	var scopeArgs []interface{}
	if clause, args := storage.ScopeClause(scope, "submitted_by", "", 1); clause != "" {
		where = " WHERE " + clause
		scopeArgs = args
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM workflow_jobs"+where, scopeArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count workflow jobs: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, kind, asset_id, submitted_by, status, payload, error, created_at, updated_at
		FROM workflow_jobs
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(scopeArgs)+1, len(scopeArgs)+2)

	rows, err := s.db.QueryContext(ctx, query, append(scopeArgs, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workflow jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*api.WorkflowJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan workflow job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating workflow jobs: %w", err)
	}

	return jobs, total, nil
}

// UpdateWorkflowJobStatus is called by the queue consumer, which owns every
// job it processes, so no scope applies.
func (s *Store) UpdateWorkflowJobStatus(ctx context.Context, id string, status api.WorkflowJobStatus, errMsg string) error {
	query := `
		UPDATE workflow_jobs
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("failed to update workflow job: %w", err)
	}
	return requireRow(result)
}

// PurgeDeadWorkflowJobs deletes dead jobs older than the cutoff. Called by
// the scheduler sweep.
func (s *Store) PurgeDeadWorkflowJobs(ctx context.Context, olderThan time.Time) (int64, error) {
	query := `DELETE FROM workflow_jobs WHERE status = 'dead' AND updated_at < $1`
	result, err := s.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead workflow jobs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*api.WorkflowJob, error) {
	var job api.WorkflowJob
	var assetID sql.NullString
	var errMsg sql.NullString
	var payload []byte
	if err := row.Scan(
		&job.ID,
		&job.Kind,
		&assetID,
		&job.SubmittedBy,
		&job.Status,
		&payload,
		&errMsg,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if assetID.Valid {
		job.AssetID = assetID.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	job.Payload = payload
	return &job, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
