package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/assethub/assethub/pkg/auth"
)

// Visibility controls who may see an asset beyond its owner.
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
	VisibilityPublic   Visibility = "public"
)

// Valid reports whether v is one of the recognized visibility levels.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityInternal, VisibilityPublic:
		return true
	}
	return false
}

// Asset is a catalog entry: a named, owned, labeled thing whose files live in
// object storage.
type Asset struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Visibility  Visibility        `json:"visibility"`
	Owner       string            `json:"owner"`
	Labels      map[string]string `json:"labels,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// AssetObject is a single file under an asset. Content lives in S3 under
// ObjectKey; the row carries metadata only.
type AssetObject struct {
	ID          string    `json:"id"`
	AssetID     string    `json:"asset_id"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash,omitempty"`
	ObjectKey   string    `json:"-"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccessRequestStatus is the review state of an access request.
type AccessRequestStatus string

const (
	AccessRequestPending  AccessRequestStatus = "pending"
	AccessRequestApproved AccessRequestStatus = "approved"
	AccessRequestDenied   AccessRequestStatus = "denied"
	AccessRequestExpired  AccessRequestStatus = "expired"
)

// AccessRequest records a subject asking for access to an asset they cannot
// see. Stewards and admins review them.
type AccessRequest struct {
	ID            string              `json:"id"`
	AssetID       string              `json:"asset_id"`
	Requester     string              `json:"requester"`
	Justification string              `json:"justification,omitempty"`
	Status        AccessRequestStatus `json:"status"`
	Reviewer      string              `json:"reviewer,omitempty"`
	ReviewedAt    *time.Time          `json:"reviewed_at,omitempty"`
	ExpiresAt     time.Time           `json:"expires_at"`
	CreatedAt     time.Time           `json:"created_at"`
}

// WorkflowJobStatus is the lifecycle state of a queued job.
type WorkflowJobStatus string

const (
	JobQueued    WorkflowJobStatus = "queued"
	JobRunning   WorkflowJobStatus = "running"
	JobSucceeded WorkflowJobStatus = "succeeded"
	JobFailed    WorkflowJobStatus = "failed"
	JobDead      WorkflowJobStatus = "dead"
)

// WorkflowJob is an asynchronous task (validation, ingest) dispatched to the
// queue on behalf of a subject.
type WorkflowJob struct {
	ID          string            `json:"id"`
	Kind        string            `json:"kind"`
	AssetID     string            `json:"asset_id,omitempty"`
	SubmittedBy string            `json:"submitted_by"`
	Status      WorkflowJobStatus `json:"status"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// UserMetadata is a per-user preferences blob, visible only to its owner.
type UserMetadata struct {
	Username    string          `json:"username"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store is the persistence contract the handlers are written against. Every
// read takes an auth.Scope so row visibility is decided in one place and
// enforced in SQL; writes take the acting username where ownership matters.
type Store interface {
	// Assets
	CreateAsset(ctx context.Context, asset *Asset) error
	GetAsset(ctx context.Context, id string, scope auth.Scope) (*Asset, error)
	ListAssets(ctx context.Context, scope auth.Scope, limit, offset int) ([]*Asset, int64, error)
	UpdateAsset(ctx context.Context, asset *Asset, scope auth.Scope) error
	DeleteAsset(ctx context.Context, id string, scope auth.Scope) error

	// Asset objects
	CreateAssetObject(ctx context.Context, object *AssetObject) error
	GetAssetObject(ctx context.Context, assetID, objectID string, scope auth.Scope) (*AssetObject, error)
	ListAssetObjects(ctx context.Context, assetID string, scope auth.Scope) ([]*AssetObject, error)
	DeleteAssetObject(ctx context.Context, assetID, objectID string, scope auth.Scope) error

	// Access requests
	CreateAccessRequest(ctx context.Context, request *AccessRequest) error
	GetAccessRequest(ctx context.Context, id string, scope auth.Scope) (*AccessRequest, error)
	ListAccessRequests(ctx context.Context, scope auth.Scope, status AccessRequestStatus, limit, offset int) ([]*AccessRequest, int64, error)
	ReviewAccessRequest(ctx context.Context, id, reviewer string, approve bool) error
	ExpireAccessRequests(ctx context.Context, now time.Time) (int64, error)

	// Workflow jobs
	CreateWorkflowJob(ctx context.Context, job *WorkflowJob) error
	GetWorkflowJob(ctx context.Context, id string, scope auth.Scope) (*WorkflowJob, error)
	ListWorkflowJobs(ctx context.Context, scope auth.Scope, limit, offset int) ([]*WorkflowJob, int64, error)
	UpdateWorkflowJobStatus(ctx context.Context, id string, status WorkflowJobStatus, errMsg string) error
	PurgeDeadWorkflowJobs(ctx context.Context, olderThan time.Time) (int64, error)

	// User metadata
	GetUserMetadata(ctx context.Context, username string, scope auth.Scope) (*UserMetadata, error)
	PutUserMetadata(ctx context.Context, meta *UserMetadata, scope auth.Scope) error

	// Health
	HealthCheck(ctx context.Context) error
	Close() error
}

/// ObjectStore is the content side of asset objects: bytes in, presigned URLs
// out. The SQL Store holds only metadata.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) (hash string, err error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// JobQueue dispatches workflow jobs to the broker. Declared here so the
// broker can depend on this package for the job type without a cycle.
type JobQueue interface {
	Enqueue(ctx context.Context, job *WorkflowJob) error
}
