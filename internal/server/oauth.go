package server

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/airwave/internal/shared"
	"github.com/desertthunder/airwave/internal/vault"
)

// stateCookie is a belt-and-braces correlation check alongside the persisted
// OAuth state row.
const stateCookie = "airwave_oauth_state"

// OAuthHandler serves the publishing platform connect, callback, status, and
// disconnect endpoints.
//
// The application user is supplied by the excluded web layer via the
// X-User-ID header; identity itself is not this core's concern.
type OAuthHandler struct {
	vault  *vault.Vault
	logger *log.Logger
}

// NewOAuthHandler creates an OAuthHandler over the given vault.
func NewOAuthHandler(v *vault.Vault, logger *log.Logger) *OAuthHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OAuthHandler{vault: v, logger: logger}
}

// Routes returns the method-qualified patterns this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{
		"GET /connect",
		"GET /callback",
		"GET /connect/status",
		"DELETE /connect",
	}
}

// ServeHTTP dispatches by method and path.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodDelete:
		h.disconnect(w, r)
	case r.URL.Path == "/callback":
		h.callback(w, r)
	case r.URL.Path == "/connect/status":
		h.status(w, r)
	default:
		h.begin(w, r)
	}
}

// begin issues a single-use state and redirects the caller to the provider
// authorization URL. The state also travels in a short-lived http-only
// cookie scoped SameSite-Lax so the callback can cross-check it.
func (h *OAuthHandler) begin(w http.ResponseWriter, r *http.Request) {
	authURL, state, err := h.vault.BeginAuthorization()
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(vault.StateTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// callback validates state and exchanges the authorization code. The
// persisted state row is authoritative; the cookie check catches callers
// that arrived without starting a flow here.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		sendError(w, http.StatusBadRequest, "missing state parameter")
		return
	}

	if cookie, err := r.Cookie(stateCookie); err == nil && cookie.Value != state {
		sendError(w, http.StatusBadRequest, "state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		errParam := r.URL.Query().Get("error")
		h.logger.Warn("authorization denied", "err", errParam)
		sendError(w, http.StatusBadRequest, "authorization failed")
		return
	}

	conn, err := h.vault.CompleteAuthorization(r.Context(), userID(r), code, state)
	if err != nil {
		if errors.Is(err, shared.ErrCsrfMismatch) {
			sendError(w, http.StatusBadRequest, "state mismatch")
			return
		}
		sendError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Expire the correlation cookie; the state is consumed either way.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, SameSite: http.SameSiteLaxMode})

	sendSuccess(w, map[string]any{"connected": true, "expires_at": conn.ExpiresAt})
}

func (h *OAuthHandler) status(w http.ResponseWriter, r *http.Request) {
	connected, err := h.vault.Status(userID(r))
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(w, map[string]bool{"connected": connected})
}

func (h *OAuthHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	existed, err := h.vault.Disconnect(r.Context(), userID(r))
	if err != nil {
		sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sendSuccess(w, map[string]bool{"disconnected": existed})
}

// userID resolves the application user for the request. The web layer owns
// identity; a missing header maps to the single-tenant default.
func userID(r *http.Request) string {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return id
	}
	return "default"
}
