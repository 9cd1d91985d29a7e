package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/httputil"
	"github.com/assethub/assethub/pkg/storage"
)

// writeStoreError maps the error taxonomy onto HTTP statuses: missing or
// out-of-scope rows are 404, policy denials are 403, everything else 500.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *auth.AuthorizationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	case errors.As(err, &denied):
		httputil.WriteForbidden(w, denied.Error())
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		httputil.WriteInternalError(w, errors.New("internal error"))
	}
}

type createAssetRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Visibility  Visibility        `json:"visibility"`
	Labels      map[string]string `json:"labels"`
}

func (s *Server) createAsset(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)

	if err := ident.EnforceOrDeny("asset", "create"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var req createAssetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.Visibility == "" {
		req.Visibility = VisibilityPrivate
	}
	if !req.Visibility.Valid() {
		httputil.WriteBadRequest(w, "visibility must be private, internal, or public")
		return
	}

	asset := &Asset{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		Owner:       ident.Username(),
		Labels:      req.Labels,
	}
	if err := s.store.CreateAsset(r.Context(), asset); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	httputil.WriteCreated(w, asset)
}

func (s *Server) getAsset(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if ident != nil {
		if err := ident.EnforceOrDeny("asset", "read"); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	asset, err := s.store.GetAsset(r.Context(), id, auth.AssetScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, asset)
}

type listResponse struct {
	Items  interface{} `json:"items"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

func (s *Server) listAssets(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if ident != nil {
		if err := ident.EnforceOrDeny("asset", "read"); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	limit, offset, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	assets, total, err := s.store.ListAssets(r.Context(), auth.AssetScope(ident), limit, offset)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, listResponse{Items: assets, Total: total, Limit: limit, Offset: offset})
}

type updateAssetRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Visibility  Visibility        `json:"visibility"`
	Labels      map[string]string `json:"labels"`
}

func (s *Server) updateAsset(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("asset", "update"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req updateAssetRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if !req.Visibility.Valid() {
		httputil.WriteBadRequest(w, "visibility must be private, internal, or public")
		return
	}

	asset := &Asset{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Visibility:  req.Visibility,
		Labels:      req.Labels,
	}
	if err := s.store.UpdateAsset(r.Context(), asset, auth.AssetScope(ident)); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	fresh, err := s.store.GetAsset(r.Context(), id, auth.AssetScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, fresh)
}

func (s *Server) deleteAsset(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("asset", "delete"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.store.DeleteAsset(r.Context(), id, auth.AssetScope(ident)); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
