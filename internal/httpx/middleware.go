package httpx

import (
	"net/http"

	"github.com/verdex/carbonmarket/internal/identity"
)

// Identity headers are set by the gateway in front of this service; auth
// itself is out of scope here, but every handler requires a company id to
// scope its queries.
const (
	HeaderCompanyID = "X-Company-Id"
	HeaderUserID    = "X-User-Id"
)

func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := identity.Identity{
			CompanyID: r.Header.Get(HeaderCompanyID),
			UserID:    r.Header.Get(HeaderUserID),
		}
		if id.CompanyID == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing company identity"})
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.With(r.Context(), id)))
	})
}
