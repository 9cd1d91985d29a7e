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

// Access requests. The requester column is the owner for scoping purposes;
// stewards and admins arrive with Scope.All.

func (s *Store) CreateAccessRequest(ctx context.Context, request *api.AccessRequest) error {
	query := `
		INSERT INTO access_requests (id, asset_id, requester, justification, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		request.ID,
		request.AssetID,
		request.Requester,
		request.Justification,
		string(request.Status),
		request.ExpiresAt,
	).Scan(&request.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create access request: %w", err)
	}
	return nil
}

func (s *Store) GetAccessRequest(ctx context.Context, id string, scope auth.Scope) (*api.AccessRequest, error) {
	query := `
		SELECT id, asset_id, requester, justification, status, reviewer, reviewed_at, expires_at, created_at
		FROM access_requests
		WHERE id = $1
	`
	args := []interface{}{id}
	if clause, clauseArgs := storage.ScopeClause(scope, "requester", "", 2); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	var request api.AccessRequest
	var reviewer sql.NullString
	var reviewedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&request.ID,
		&request.AssetID,
		&request.Requester,
		&request.Justification,
		&request.Status,
		&reviewer,
		&reviewedAt,
		&request.ExpiresAt,
		&request.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get access request: %w", err)
	}

	if reviewer.Valid {
		request.Reviewer = reviewer.String
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		request.ReviewedAt = &t
	}
	return &request, nil
}

func (s *Store) ListAccessRequests(ctx context.Context, scope auth.Scope, status api.AccessRequestStatus, limit, offset int) ([]*api.AccessRequest, int64, error) {
	where := " WHERE TRUE"
	var args []interface{}
	if clause, clauseArgs := storage.ScopeClause(scope, "requester", "", len(args)+1); clause != "" {
		where += " AND " + clause
		args = append(args, clauseArgs...)
	}
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(status))
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count access requests: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, asset_id, requester, justification, status, reviewer, reviewed_at, expires_at, created_at
		FROM access_requests
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer rows.Close()

	var requests []*api.AccessRequest
	for rows.Next() {
		var request api.AccessRequest
		var reviewer sql.NullString
		var reviewedAt sql.NullTime
		if err := rows.Scan(
			&request.ID,
			&request.AssetID,
			&request.Requester,
			&request.Justification,
			&request.Status,
			&reviewer,
			&reviewedAt,
			&request.ExpiresAt,
			&request.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan access request: %w", err)
		}
		if reviewer.Valid {
			request.Reviewer = reviewer.String
		}
		if reviewedAt.Valid {
			t := reviewedAt.Time
			request.ReviewedAt = &t
		}
		requests = append(requests, &request)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating access requests: %w", err)
	}

	return requests, total, nil
}

// ReviewAccessRequest transitions a pending request to approved or denied.
// Reviewing a request that is not pending returns ErrNotFound.
func (s *Store) ReviewAccessRequest(ctx context.Context, id, reviewer string, approve bool) error {
	status := api.AccessRequestDenied
	if approve {
		status = api.AccessRequestApproved
	}

	query := `
		UPDATE access_requests
		SET status = $2, reviewer = $3, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := s.db.ExecContext(ctx, query, id, string(status), reviewer)
	if err != nil {
		return fmt.Errorf("failed to review access request: %w", err)
	}
	return requireRow(result)
}

// ExpireAccessRequests marks pending requests past their expiry as expired
// and returns how many rows changed. Called by the scheduler sweep.
func (s *Store) ExpireAccessRequests(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE access_requests
		SET status = 'expired'
		WHERE status = 'pending' AND expires_at < $1
	`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire access requests: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected, nil
}
