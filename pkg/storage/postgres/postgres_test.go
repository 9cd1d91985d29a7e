package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db, nil), mock
}

func TestGetAsset_ScopedQuery(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "name", "description", "visibility", "owner", "labels", "created_at", "updated_at",
	}).AddRow("a1", "dataset", "", "private", "alice", []byte(`{"team":"ml"}`), now, now)

	// owner + public scope produces both predicates
	mock.ExpectQuery(`SELECT id, name, description, visibility, owner, labels, created_at, updated_at\s+FROM assets\s+WHERE id = \$1\s+AND \(owner = \$2 OR visibility = 'public'\)`).
		WithArgs("a1", "alice").
		WillReturnRows(rows)

	asset, err := store.GetAsset(context.Background(), "a1", auth.Scope{Owner: "alice", IncludePublic: true})
	if err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if asset.Owner != "alice" || asset.Labels["team"] != "ml" {
		t.Errorf("asset = %+v", asset)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetAsset_AdminSkipsScope(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, name, description, visibility, owner, labels, created_at, updated_at\s+FROM assets\s+WHERE id = \$1\s*$`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "visibility", "owner", "labels", "created_at", "updated_at",
		}).AddRow("a1", "dataset", "", "private", "bob", []byte(`{}`), now, now))

	if _, err := store.GetAsset(context.Background(), "a1", auth.Scope{All: true}); err != nil {
		t.Fatalf("GetAsset() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetAsset_OutOfScopeIsNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM assets`).
		WithArgs("a1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "visibility", "owner", "labels", "created_at", "updated_at",
		}))

	_, err := store.GetAsset(context.Background(), "a1", auth.Scope{Owner: "alice", IncludePublic: true})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetAsset() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateAsset_PublicVisibilityDoesNotPermitWrites(t *testing.T) {
	store, mock := newMockStore(t)

	// Even with IncludePublic set, the write predicate is owner-only.
	mock.ExpectExec(`UPDATE assets\s+SET name = \$2, description = \$3, visibility = \$4, labels = \$5, updated_at = NOW\(\)\s+WHERE id = \$1\s+AND \(owner = \$6\)`).
		WithArgs("a1", "dataset", "", "public", []byte(`null`), "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateAsset(context.Background(), &api.Asset{
		ID:         "a1",
		Name:       "dataset",
		Visibility: api.VisibilityPublic,
	}, auth.Scope{Owner: "alice", IncludePublic: true})

	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateAsset() error = %v, want ErrNotFound for out-of-scope row", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDeleteAsset(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM assets WHERE id = \$1 AND \(owner = \$2\)`).
		WithArgs("a1", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteAsset(context.Background(), "a1", auth.Scope{Owner: "alice", IncludePublic: true}); err != nil {
		t.Fatalf("DeleteAsset() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListAssets_CountAndPage(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM assets WHERE (visibility = 'public')`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	mock.ExpectQuery(`SELECT id, name, description, visibility, owner, labels, created_at, updated_at\s+FROM assets\s+WHERE \(visibility = 'public'\)\s+ORDER BY created_at DESC\s+LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "description", "visibility", "owner", "labels", "created_at", "updated_at",
		}).AddRow("a2", "public-set", "", "public", "bob", []byte(`{}`), now, now))

	assets, total, err := store.ListAssets(context.Background(), auth.Scope{IncludePublic: true}, 50, 0)
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	if total != 1 || len(assets) != 1 || assets[0].ID != "a2" {
		t.Errorf("assets = %v, total = %d", assets, total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestReviewAccessRequest(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE access_requests\s+SET status = \$2, reviewer = \$3, reviewed_at = NOW\(\)\s+WHERE id = \$1 AND status = 'pending'`).
		WithArgs("r1", "approved", "carol").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.ReviewAccessRequest(context.Background(), "r1", "carol", true); err != nil {
		t.Fatalf("ReviewAccessRequest() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestReviewAccessRequest_AlreadyReviewed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE access_requests`).
		WithArgs("r1", "denied", "carol").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.ReviewAccessRequest(context.Background(), "r1", "carol", false)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ReviewAccessRequest() error = %v, want ErrNotFound", err)
	}
}

func TestExpireAccessRequests(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectExec(`UPDATE access_requests\s+SET status = 'expired'\s+WHERE status = 'pending' AND expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.ExpireAccessRequests(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpireAccessRequests() error = %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestPurgeDeadWorkflowJobs(t *testing.T) {
	store, mock := newMockStore(t)

	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM workflow_jobs WHERE status = 'dead' AND updated_at < $1`)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 2))

	count, err := store.PurgeDeadWorkflowJobs(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeDeadWorkflowJobs() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestGetWorkflowJob_ScopedToSubmitter(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery(`SELECT id, kind, asset_id, submitted_by, status, payload, error, created_at, updated_at\s+FROM workflow_jobs\s+WHERE id = \$1\s+AND \(submitted_by = \$2\)`).
		WithArgs("j1", "bob").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "kind", "asset_id", "submitted_by", "status", "payload", "error", "created_at", "updated_at",
		}).AddRow("j1", "validation", nil, "bob", "queued", []byte(`{}`), nil, now, now))

	job, err := store.GetWorkflowJob(context.Background(), "j1", auth.Scope{Owner: "bob"})
	if err != nil {
		t.Fatalf("GetWorkflowJob() error = %v", err)
	}
	if job.SubmittedBy != "bob" || job.Status != api.JobQueued {
		t.Errorf("job = %+v", job)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPutUserMetadata_RejectsForeignRow(t *testing.T) {
	store, _ := newMockStore(t)

	err := store.PutUserMetadata(context.Background(), &api.UserMetadata{
		Username:    "bob",
		Preferences: []byte(`{"theme":"dark"}`),
	}, auth.Scope{Owner: "alice"})

	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("PutUserMetadata() error = %v, want ErrNotFound", err)
	}
}

func TestPutUserMetadata_Upsert(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO user_metadata \(username, preferences, updated_at\)`).
		WithArgs("alice", []byte(`{"theme":"dark"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	meta := &api.UserMetadata{Username: "alice", Preferences: []byte(`{"theme":"dark"}`)}
	if err := store.PutUserMetadata(context.Background(), meta, auth.Scope{Owner: "alice"}); err != nil {
		t.Fatalf("PutUserMetadata() error = %v", err)
	}
	if meta.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not populated from RETURNING")
	}
}
