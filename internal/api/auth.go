package api

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// requireAuth wraps h with single-user HTTP Basic Auth, checked against
// the configured username and a bcrypt password hash (AUTH_USERNAME /
// AUTH_PASSWORD_HASH, spec.md §6). original_source's Flask-Login session
// cookie is simplified to stateless Basic Auth here — no pack library
// provides signed session cookies (gorilla/sessions is absent from the
// corpus), and bcrypt alone is enough to honor "authentication required
// on all routes; single-user session" without inventing a cookie scheme.
// When no credentials are configured, auth is a no-op — matching
// original_source's User.get_configured_user() returning None.
func (s *Server) requireAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authUsername == "" || s.authPasswordHash == "" {
			h(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(user), []byte(s.authUsername)) != 1 {
			unauthorized(w)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(s.authPasswordHash), []byte(pass)) != nil {
			unauthorized(w)
			return
		}
		h(w, r)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="tradintel"`)
	writeError(w, http.StatusUnauthorized, "invalid credentials")
}
