package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/storage"
)

// Asset objects. Visibility follows the owning asset: scoped queries join
// assets and apply the scope to the asset row.

func (s *Store) CreateAssetObject(ctx context.Context, object *api.AssetObject) error {
	query := `
		INSERT INTO asset_objects (id, asset_id, path, content_type, size, content_hash, object_key, owner)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	err := s.db.QueryRowContext(ctx, query,
		object.ID,
		object.AssetID,
		object.Path,
		object.ContentType,
		object.Size,
		object.ContentHash,
		object.ObjectKey,
		object.Owner,
	).Scan(&object.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create asset object: %w", err)
	}
	return nil
}

func (s *Store) GetAssetObject(ctx context.Context, assetID, objectID string, scope auth.Scope) (*api.AssetObject, error) {
	query := `
		SELECT o.id, o.asset_id, o.path, o.content_type, o.size, o.content_hash, o.object_key, o.owner, o.created_at
		FROM asset_objects o
		JOIN assets a ON o.asset_id = a.id
		WHERE o.asset_id = $1 AND o.id = $2
	`
	args := []interface{}{assetID, objectID}
	if clause, clauseArgs := storage.ScopeClause(scope, "a.owner", "a.visibility", 3); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	var object api.AssetObject
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&object.ID,
		&object.AssetID,
		&object.Path,
		&object.ContentType,
		&object.Size,
		&object.ContentHash,
		&object.ObjectKey,
		&object.Owner,
		&object.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get asset object: %w", err)
	}
	return &object, nil
}

func (s *Store) ListAssetObjects(ctx context.Context, assetID string, scope auth.Scope) ([]*api.AssetObject, error) {
	query := `
		SELECT o.id, o.asset_id, o.path, o.content_type, o.size, o.content_hash, o.object_key, o.owner, o.created_at
		FROM asset_objects o
		JOIN assets a ON o.asset_id = a.id
		WHERE o.asset_id = $1
	`
	args := []interface{}{assetID}
	if clause, clauseArgs := storage.ScopeClause(scope, "a.owner", "a.visibility", 2); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}
	query += " ORDER BY o.path"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list asset objects: %w", err)
	}
	defer rows.Close()

	var objects []*api.AssetObject
	for rows.Next() {
		var object api.AssetObject
		if err := rows.Scan(
			&object.ID,
			&object.AssetID,
			&object.Path,
			&object.ContentType,
			&object.Size,
			&object.ContentHash,
			&object.ObjectKey,
			&object.Owner,
			&object.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan asset object: %w", err)
		}
		objects = append(objects, &object)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating asset objects: %w", err)
	}
	return objects, nil
}

func (s *Store) DeleteAssetObject(ctx context.Context, assetID, objectID string, scope auth.Scope) error {
	// Deletion is owner-or-admin, never via public visibility.
	writeScope := scope
	writeScope.IncludePublic = false

	query := `
		DELETE FROM asset_objects o
		USING assets a
		WHERE o.asset_id = a.id AND o.asset_id = $1 AND o.id = $2
	`
	args := []interface{}{assetID, objectID}
	if clause, clauseArgs := storage.ScopeClause(writeScope, "a.owner", "", 3); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete asset object: %w", err)
	}
	return requireRow(result)
}
