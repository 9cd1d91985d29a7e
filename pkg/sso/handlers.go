package sso

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/assethub/assethub/pkg/httputil"
	"github.com/assethub/assethub/pkg/observability"
)

const (
	stateCookieName  = "assethub_sso_state"
	returnCookieName = "assethub_sso_return"
	stateTTL         = 10 * time.Minute
)

// Handlers serves the browser login flow. The callback hands the access
// token back to the caller; the API then accepts it as a bearer token.
type Handlers struct {
	provider *Provider
	logger   *observability.Logger
}

func NewHandlers(provider *Provider, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Handlers{provider: provider, logger: logger}
}

// RegisterRoutes mounts the login flow on the given router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods("GET")
	router.HandleFunc("/auth/callback", h.callback).Methods("GET")
	router.HandleFunc("/auth/logout", h.logout).Methods("GET")
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func setFlowCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
}

func clearFlowCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
}

func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	state, err := newState()
	if err != nil {
		h.logger.WithError(err).Error("failed to generate login state")
		httputil.WriteInternalError(w, err)
		return
	}

	setFlowCookie(w, r, stateCookieName, state)
	if returnURL := r.URL.Query().Get("return_url"); returnURL != "" {
		setFlowCookie(w, r, returnCookieName, returnURL)
	}

	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

type loginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	ReturnURL   string    `json:"return_url,omitempty"`
	User        UserInfo  `json:"user"`
}

func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		h.logger.WithField("error", errCode).Warn("identity provider rejected login")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		httputil.WriteBadRequest(w, "missing login state")
		return
	}
	if query.Get("state") != stateCookie.Value {
		httputil.WriteBadRequest(w, "state mismatch")
		return
	}

	code := query.Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	result, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.WithError(err).Warn("authorization code exchange failed")
		httputil.WriteUnauthorized(w, "login failed")
		return
	}

	var returnURL string
	if returnCookie, err := r.Cookie(returnCookieName); err == nil {
		returnURL = returnCookie.Value
	}
	clearFlowCookie(w, stateCookieName)
	clearFlowCookie(w, returnCookieName)

	h.logger.WithField("username", result.User.Username).Info("sso login completed")
	httputil.WriteSuccess(w, loginResponse{
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
		ReturnURL:   returnURL,
		User:        result.User,
	})
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	clearFlowCookie(w, stateCookieName)
	clearFlowCookie(w, returnCookieName)

	if endSession := h.provider.EndSessionURL(r.URL.Query().Get("return_url")); endSession != "" {
		http.Redirect(w, r, endSession, http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
