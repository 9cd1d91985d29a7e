package main

import (
	"context"
	"fmt"

	"github.com/assethub/assethub/pkg/api"
	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/broker"
	"github.com/assethub/assethub/pkg/observability"
)

// jobStore is the slice of the catalog store the worker needs.
type jobStore interface {
	GetAsset(ctx context.Context, id string, scope auth.Scope) (*api.Asset, error)
	ListAssetObjects(ctx context.Context, assetID string, scope auth.Scope) ([]*api.AssetObject, error)
	UpdateWorkflowJobStatus(ctx context.Context, id string, status api.WorkflowJobStatus, errMsg string) error
}

// jobHandler runs dequeued workflow jobs. The worker operates with an
// unrestricted scope; visibility was already enforced when the job was
// submitted.
func jobHandler(store jobStore, logger *observability.Logger) broker.Handler {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	all := auth.Scope{All: true}

	return func(ctx context.Context, job *api.WorkflowJob) error {
		log := logger.WithFields(map[string]interface{}{
			"job_id": job.ID,
			"kind":   job.Kind,
		})

		if err := store.UpdateWorkflowJobStatus(ctx, job.ID, api.JobRunning, ""); err != nil {
			return fmt.Errorf("failed to mark job running: %w", err)
		}

		var runErr error
		switch job.Kind {
		case "validation":
			runErr = runValidation(ctx, store, job, all)
		case "ingest":
			runErr = runIngest(ctx, store, job, all)
		default:
			runErr = fmt.Errorf("unknown job kind %q", job.Kind)
		}

		if runErr != nil {
			log.WithError(runErr).Warn("workflow job failed")
			return store.UpdateWorkflowJobStatus(ctx, job.ID, api.JobFailed, runErr.Error())
		}

		log.Info("workflow job completed")
		return store.UpdateWorkflowJobStatus(ctx, job.ID, api.JobSucceeded, "")
	}
}

// runValidation checks that every object registered under the asset finished
// uploading, i.e. carries a content hash. Objects created for a direct
// presigned upload stay hashless until ingest confirms them.
func runValidation(ctx context.Context, store jobStore, job *api.WorkflowJob, scope auth.Scope) error {
	if job.AssetID == "" {
		return fmt.Errorf("validation requires an asset")
	}
	objects, err := store.ListAssetObjects(ctx, job.AssetID, scope)
	if err != nil {
		return fmt.Errorf("failed to list asset objects: %w", err)
	}
	for _, object := range objects {
		if object.ContentHash == "" {
			return fmt.Errorf("object %s (%s) has no verified content", object.ID, object.Path)
		}
	}
	return nil
}

// runIngest confirms the asset still exists before declaring the ingest
// complete. Content arrives out of band through presigned PUTs.
func runIngest(ctx context.Context, store jobStore, job *api.WorkflowJob, scope auth.Scope) error {
	if job.AssetID == "" {
		return nil
	}
	if _, err := store.GetAsset(ctx, job.AssetID, scope); err != nil {
		return fmt.Errorf("asset %s not available for ingest: %w", job.AssetID, err)
	}
	return nil
}
