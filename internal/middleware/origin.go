package middleware

import (
	"net/http"

	"github.com/pantrio/pantrio/internal/docstore"
)

// SessionOrigin tags the request context with the client's session
// identifier, taken from the X-Session-Origin header or, for websocket
// upgrades where the browser cannot attach headers, the session query
// parameter. Writes carrying an origin are echoed back, flagged pending, to
// live subscriptions opened by the same session; requests without one only
// see committed state.
func SessionOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("X-Session-Origin")
		if origin == "" {
			origin = r.URL.Query().Get("session")
		}
		if origin != "" {
			r = r.WithContext(docstore.WithOrigin(r.Context(), origin))
		}
		next.ServeHTTP(w, r)
	})
}
