package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/assethub/assethub/pkg/auth"
	"github.com/assethub/assethub/pkg/httputil"
	"github.com/assethub/assethub/pkg/storage"
)

func (s *Server) getUserMetadata(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("user_metadata", "read"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	meta, err := s.store.GetUserMetadata(r.Context(), ident.Username(), auth.UserMetadataScope(ident))
	if errors.Is(err, storage.ErrNotFound) {
		// Never written yet; an empty blob, not an error.
		httputil.WriteSuccess(w, &UserMetadata{Username: ident.Username(), Preferences: []byte("{}")})
		return
	}
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, meta)
}

type putUserMetadataRequest struct {
	Preferences json.RawMessage `json:"preferences"`
}

func (s *Server) putUserMetadata(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromRequest(r)
	if err := ident.EnforceOrDeny("user_metadata", "update"); err != nil {
		s.writeStoreError(w, r, err)
		return
	}

	var req putUserMetadataRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	meta := &UserMetadata{
		Username:    ident.Username(),
		Preferences: req.Preferences,
	}
	if err := s.store.PutUserMetadata(r.Context(), meta, auth.UserMetadataScope(ident)); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, meta)
}
