package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/httputil"
)

const defaultRequestTTL = 14 * 24 * time.Hour

type createAccessRequestRequest struct {
	AssetID       string `json:"asset_id"`
	Justification string `json:"justification"`
}

func (s *Server) createAccessRequest(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("access_request", "create"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var req createAccessRequestRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.AssetID == "" {
		httputil.WriteBadRequest(w, "asset_id is required")
		return
	}

	request := &AccessRequest{
		ID:            uuid.NewString(),
		AssetID:       req.AssetID,
		Requester:     ident.Username(),
		Justification: req.Justification,
		Status:        AccessRequestPending,
		ExpiresAt:     time.Now().Add(defaultRequestTTL),
	}
	if err := s.store.CreateAccessRequest(r.Context(), request); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	httputil.WriteCreated(w, request)
}

func (s *Server) getAccessRequest(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("access_request", "read"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	request, err := s.store.GetAccessRequest(r.Context(), id, auth.AccessRequestScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, request)
}

func (s *Server) listAccessRequests(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("access_request", "read"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	status := AccessRequestStatus(r.URL.Query().Get("status"))
	requests, total, err := s.store.ListAccessRequests(r.Context(), auth.AccessRequestScope(ident), status, limit, offset)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: requests, Total: total, Limit: limit, Offset: offset})
}

type reviewRequest struct {
	Approve bool `json:"approve"`
}

// reviewAccessRequest is the steward/admin operation: approve or deny a
// pending request.
func (s *Server) reviewAccessRequest(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	action := "deny"

	var req reviewRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Approve {
		action = "approve"
	}

	if err := ident.EnforceOrDeny("access_request", action); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.ReviewAccessRequest(r.Context(), id, ident.Username(), req.Approve); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	request, err := s.store.GetAccessRequest(r.Context(), id, auth.AccessRequestScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, request)
}
