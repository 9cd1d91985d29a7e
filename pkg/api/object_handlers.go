package api

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/httputil"
)

const presignExpiry = 15 * time.Minute

type createObjectRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"content_type"`

	// Content carries small payloads inline, base64-encoded. When empty the
	// response includes a presigned PUT URL for a direct upload instead.
	Content string `json:"content,omitempty"`
}

type createObjectResponse struct {
	Object    *AssetObject `json:"object"`
	UploadURL string       `json:"upload_url,omitempty"`
}

func (s *Server) createAssetObject(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("asset_object", "create"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	assetID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	// The owning asset must be writable by the caller.
	writeScope := auth.AssetScope(ident)
	writeScope.IncludePublic = false
	asset, err := s.store.GetAsset(r.Context(), assetID, writeScope)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var req createObjectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Path == "" {
		httputil.WriteBadRequest(w, "path is required")
		return
	}

	object := &AssetObject{
		ID:          uuid.NewString(),
		AssetID:     asset.ID,
		Path:        req.Path,
		ContentType: req.ContentType,
		Owner:       ident.Username(),
		ObjectKey:   fmt.Sprintf("assets/%s/%s", asset.ID, req.Path),
	}

	var uploadURL string
	if req.Content != "" {
		content, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			httputil.WriteBadRequest(w, "content must be base64")
			return
		}
		hash, err := s.objects.PutObject(r.Context(), object.ObjectKey, content, req.ContentType)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		object.ContentHash = hash
		object.Size = int64(len(content))
	} else {
		uploadURL, err = s.objects.PresignPut(r.Context(), object.ObjectKey, req.ContentType, presignExpiry)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	if err := s.store.CreateAssetObject(r.Context(), object); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	httputil.WriteCreated(w, createObjectResponse{Object: object, UploadURL: uploadURL})
}

func (s *Server) getAssetObject(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if ident != nil {
		if err := ident.EnforceOrDeny("asset_object", "read"); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	assetID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	objectID, ok := httputil.ParsePathStringOrError(w, r, "objectId")
	if !ok {
		return
	}

	object, err := s.store.GetAssetObject(r.Context(), assetID, objectID, auth.AssetObjectScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, object)
}

func (s *Server) listAssetObjects(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if ident != nil {
		if err := ident.EnforceOrDeny("asset_object", "read"); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}

	assetID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	objects, err := s.store.ListAssetObjects(r.Context(), assetID, auth.AssetObjectScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, objects)
}

type downloadResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// downloadAssetObject returns a presigned GET URL rather than proxying bytes.
func (s *Server) downloadAssetObject(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("asset_object", "read"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	assetID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	objectID, ok := httputil.ParsePathStringOrError(w, r, "objectId")
	if !ok {
		return
	}

	object, err := s.store.GetAssetObject(r.Context(), assetID, objectID, auth.AssetObjectScope(ident))
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	url, err := s.objects.PresignGet(r.Context(), object.ObjectKey, presignExpiry)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, downloadResponse{URL: url, ExpiresAt: time.Now().Add(presignExpiry)})
}

func (s *Server) deleteAssetObject(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("asset_object", "delete"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	assetID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	objectID, ok := httputil.ParsePathStringOrError(w, r, "objectId")
	if !ok {
		return
	}

	scope := auth.AssetObjectScope(ident)
	object, err := s.store.GetAssetObject(r.Context(), assetID, objectID, scope)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	if err := s.store.DeleteAssetObject(r.Context(), assetID, objectID, scope); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	// Best effort: the row is gone, a leaked object is swept up out of band.
	if err := s.objects.DeleteObject(r.Context(), object.ObjectKey); err != nil {
		s.logger.WithError(err).WithField("key", object.ObjectKey).Warn("failed to delete object content")
	}

	httputil.WriteNoContent(w)
}
