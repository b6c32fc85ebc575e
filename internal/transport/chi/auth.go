package chi

import (
	"net/http"
	"strings"

	"github.com/kailas-cloud/docchat/internal/domain"
)

// exemptPaths are routes that never carry a principal (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware resolves the Bearer token of a request to a principal using
// tokens (token → user id). A missing, malformed or unknown token leaves the request
// without a principal; handlers reject it with 401 before doing any work.
func BearerAuthMiddleware(tokens map[string]string) func(http.Handler) http.Handler {
	valid := make(map[string]string, len(tokens))
	for token, userID := range tokens {
		if token != "" && userID != "" {
			valid[token] = userID
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			if userID, ok := valid[bearerToken(r)]; ok {
				ctx := domain.ContextWithPrincipal(r.Context(), domain.Principal{UserID: userID})
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	const bearerPrefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) <= len(bearerPrefix) || !strings.EqualFold(auth[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(bearerPrefix):])
}
