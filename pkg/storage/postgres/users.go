package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/storage"
)

// User metadata. Strictly owner-scoped; the username column is the owner.

func (s *Store) GetUserMetadata(ctx context.Context, username string, scope auth.Scope) (*api.UserMetadata, error) {
	query := `
		SELECT username, preferences, updated_at
		FROM user_metadata
		WHERE username = $1
	`
	args := []interface{}{username}
	if clause, clauseArgs := storage.ScopeClause(scope, "username", "", 2); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	var meta api.UserMetadata
	var preferences []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&meta.Username, &preferences, &meta.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get user metadata: %w", err)
	}
	meta.Preferences = preferences
	return &meta, nil
}

// PutUserMetadata upserts the preferences blob. The scope must admit the row
// being written; a mismatch surfaces as ErrNotFound.
func (s *Store) PutUserMetadata(ctx context.Context, meta *api.UserMetadata, scope auth.Scope) error {
	if !scope.All && scope.Owner != meta.Username {
		return storage.ErrNotFound
	}

	preferences := meta.Preferences
	if len(preferences) == 0 {
		preferences = []byte("{}")
	}

	query := `
		INSERT INTO user_metadata (username, preferences, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username)
		DO UPDATE SET preferences = EXCLUDED.preferences, updated_at = NOW()
		RETURNING updated_at
	`
	if err := s.db.QueryRowContext(ctx, query, meta.Username, []byte(preferences)).Scan(&meta.UpdatedAt); err != nil {
		return fmt.Errorf("failed to put user metadata: %w", err)
	}
	return nil
}

// compile-time check that Store satisfies the handler contract
var _ api.Store = (*Store)(nil)
