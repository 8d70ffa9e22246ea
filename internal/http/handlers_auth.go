package http

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"
)

const sessionCookie = "duit_session"

// handleLogin starts the Google sign-in flow. The state token guards the
// callback against CSRF.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}

	state := newToken()
	s.states.Set(state, time.Now())
	http.Redirect(w, r, s.provider.AuthCodeURL(state), http.StatusFound)
}

// handleCallback completes the sign-in: validates state, exchanges the
// code, provisions the user record, and issues a session cookie.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "sign-in is not configured")
		return
	}

	state := r.URL.Query().Get("state")
	if _, ok := s.states.Get(state); !ok {
		writeError(w, http.StatusBadRequest, "invalid or expired state")
		return
	}
	s.states.Delete(state)

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}

	id, err := s.provider.Exchange(r.Context(), code)
	if err != nil {
		slog.ErrorContext(r.Context(), "Sign-in exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, "sign-in failed")
		return
	}

	user, err := s.directory.EnsureUser(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "User provisioning failed", "error", err, "email", id.Email)
		writeError(w, http.StatusInternalServerError, "could not provision user")
		return
	}

	token := newToken()
	s.sessions.Set(token, user.UID)
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookie); err == nil {
		s.sessions.Delete(c.Value)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Berhasil keluar"})
}

// requireUser resolves the session cookie to a uid and passes it through
// the request context.
func (s *Server) requireUser(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		uid, ok := s.sessions.Get(c.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized, "session expired, sign in again")
			return
		}
		next(w, r, uid)
	}
}

func newToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(bytes)
}
