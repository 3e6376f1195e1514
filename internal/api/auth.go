package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/speechviz/voicemap/internal/log"
)

// authMiddleware enforces API token authentication on mutating endpoints.
// With no token configured it fails closed unless anonymous auth is
// explicitly enabled.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		token := s.cfg.APIToken
		authAnon := s.cfg.AuthAnonymous
		s.mu.RUnlock()

		if token == "" {
			if authAnon {
				next.ServeHTTP(w, r)
				return
			}
			log.FromContext(r.Context()).Error().
				Str("event", "auth.fail_closed").
				Msg("VOICEMAP_API_TOKEN not set and VOICEMAP_AUTH_ANONYMOUS!=true, denying access")
			writeUnauthorized(w)
			return
		}

		reqToken := extractToken(r)
		logger := log.FromContext(r.Context()).With().Str("component", "auth").Logger()

		if reqToken == "" {
			logger.Warn().Str("event", "auth.missing_header").Msg("authorization header missing")
			writeUnauthorized(w)
			return
		}

		if !authorizeToken(reqToken, token) {
			logger.Warn().Str("event", "auth.invalid_token").Msg("invalid api token")
			writeUnauthorized(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractToken pulls a bearer token from the Authorization header. Query
// parameter tokens are deliberately not supported.
func extractToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// authorizeToken compares tokens in constant time to prevent timing attacks.
func authorizeToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
