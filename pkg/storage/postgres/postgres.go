// Package postgres implements the api.Store contract on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/observability"
	"github.com/assethub/assethub/pkg/storage"
)

// Store is the PostgreSQL-backed implementation of api.Store.
type Store struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewStore connects to PostgreSQL, configures the pool, and verifies the
// connection. Run Migrate before serving traffic.
func NewStore(cfg storage.Config, logger *observability.Logger) (*Store, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PostgresTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Store{db: db, logger: logger}, nil
}

// NewStoreWithDB wraps an existing connection. Used by tests.
func NewStoreWithDB(db *sql.DB, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying connection for health probes.
func (s *Store) DB() *sql.DB { return s.db }

// HealthCheck pings the database.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres unhealthy: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Assets

func (s *Store) CreateAsset(ctx context.Context, asset *api.Asset) error {
	labels, err := json.Marshal(asset.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	query := `
		INSERT INTO assets (id, name, description, visibility, owner, labels)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		asset.ID,
		asset.Name,
		asset.Description,
		string(asset.Visibility),
		asset.Owner,
		labels,
	).Scan(&asset.CreatedAt, &asset.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (s *Store) GetAsset(ctx context.Context, id string, scope auth.Scope) (*api.Asset, error) {
	query := `
		SELECT id, name, description, visibility, owner, labels, created_at, updated_at
		FROM assets
		WHERE id = $1
	`
	args := []interface{}{id}
	if clause, clauseArgs := storage.ScopeClause(scope, "owner", "visibility", 2); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	var asset api.Asset
	var labels []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&asset.ID,
		&asset.Name,
		&asset.Description,
		&asset.Visibility,
		&asset.Owner,
		&labels,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}

	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &asset.Labels); err != nil {
			return nil, fmt.Errorf("failed to decode labels: %w", err)
		}
	}
	return &asset, nil
}

func (s *Store) ListAssets(ctx context.Context, scope auth.Scope, limit, offset int) ([]*api.Asset, int64, error) {
	where := ""
	var scopeArgs []interface{}
	if clause, args := storage.ScopeClause(scope, "owner", "visibility", 1); clause != "" {
		where = " WHERE " + clause
		scopeArgs = args
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM assets"+where, scopeArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count assets: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, name, description, visibility, owner, labels, created_at, updated_at
		FROM assets
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(scopeArgs)+1, len(scopeArgs)+2)

	rows, err := s.db.QueryContext(ctx, query, append(scopeArgs, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []*api.Asset
	for rows.Next() {
		var asset api.Asset
		var labels []byte
		if err := rows.Scan(
			&asset.ID,
			&asset.Name,
			&asset.Description,
			&asset.Visibility,
			&asset.Owner,
			&labels,
			&asset.CreatedAt,
			&asset.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan asset: %w", err)
		}
		if len(labels) > 0 {
			if err := json.Unmarshal(labels, &asset.Labels); err != nil {
				return nil, 0, fmt.Errorf("failed to decode labels: %w", err)
			}
		}
		assets = append(assets, &asset)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating assets: %w", err)
	}

	return assets, total, nil
}

func (s *Store) UpdateAsset(ctx context.Context, asset *api.Asset, scope auth.Scope) error {
	labels, err := json.Marshal(asset.Labels)
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}

	query := `
		UPDATE assets
		SET name = $2, description = $3, visibility = $4, labels = $5, updated_at = NOW()
		WHERE id = $1
	`
	args := []interface{}{asset.ID, asset.Name, asset.Description, string(asset.Visibility), labels}
	// Updates never widen through public visibility: only the owner (or an
	// admin) may touch the row.
	writeScope := scope
	writeScope.IncludePublic = false
	if clause, clauseArgs := storage.ScopeClause(writeScope, "owner", "", 6); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update asset: %w", err)
	}
	return requireRow(result)
}

func (s *Store) DeleteAsset(ctx context.Context, id string, scope auth.Scope) error {
	query := `DELETE FROM assets WHERE id = $1`
	args := []interface{}{id}
	writeScope := scope
	writeScope.IncludePublic = false
	if clause, clauseArgs := storage.ScopeClause(writeScope, "owner", "", 2); clause != "" {
		query += " AND " + clause
		args = append(args, clauseArgs...)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	return requireRow(result)
}

// requireRow maps a zero-row write to ErrNotFound so handlers return 404 for
// rows that are missing or out of scope.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
