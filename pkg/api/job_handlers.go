package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/httputil"
)

var workflowJobKinds = map[string]bool{
	"validation": true,
	"ingest":     true,
}

type createJobRequest struct {
	Kind    string          `json:"kind"`
	AssetID string          `json:"asset_id"`
	Payload json.RawMessage `json:"payload"`
}

func (s *Server) createWorkflowJob(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("workflow_job", "create"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var req createJobRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !workflowJobKinds[req.Kind] {
		httputil.WriteBadRequest(w, "kind must be validation or ingest")
		return
	}

	// Jobs against a specific asset require the asset to be visible.
	if req.AssetID != "" {
		if _, err := s.store.GetAsset(r.Context(), req.AssetID, auth.AssetScope(ident)); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	job := &WorkflowJob{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		AssetID:     req.AssetID,
		SubmittedBy: ident.Username(),
		Status:      JobQueued,
		Payload:     req.Payload,
	}
	if err := s.store.CreateWorkflowJob(r.Context(), job); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	if err := s.queue.Enqueue(r.Context(), job); err != nil {
		// The row exists but dispatch failed; mark it so the sweep can
		// purge it and the caller knows it will not run.
		s.logger.WithError(err).WithField("job_id", job.ID).Error("job dispatch failed")
		if updateErr := s.store.UpdateWorkflowJobStatus(r.Context(), job.ID, JobDead, "queue dispatch failed"); updateErr != nil {
			s.logger.WithError(updateErr).WithField("job_id", job.ID).Error("failed to mark job dead")
		}
		httputil.WriteServiceUnavailable(w, "job queue unavailable")
		return
	}

	httputil.WriteCreated(w, job)
}

func (s *Server) getWorkflowJob(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("workflow_job", "read"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	job, err := s.store.GetWorkflowJob(r.Context(), id, auth.WorkflowJobScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, job)
}

func (s *Server) listWorkflowJobs(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("workflow_job", "read"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	jobs, total, err := s.store.ListWorkflowJobs(r.Context(), auth.WorkflowJobScope(ident), limit, offset)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: jobs, Total: total, Limit: limit, Offset: offset})
}
