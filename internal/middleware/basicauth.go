package middleware

import (
	"crypto/subtle"
	"net/http"

	apierrors "github.com/banhbaoring/dns-broker/internal/pkg/errors"
	"github.com/banhbaoring/dns-broker/internal/pkg/response"
)

// BasicAuth returns a middleware enforcing HTTP Basic Auth against a single
// static username/password pair. The Open Service Broker API is called only
// by the platform's broker proxy, which is provisioned with these
// credentials out of band; there is no per-tenant identity at this layer
// (multi-tenant authorisation is delegated to the platform).
func BasicAuth(username, password string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeEqual(user, username) || !constantTimeEqual(pass, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="dns-broker"`)
				response.Error(w, apierrors.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
