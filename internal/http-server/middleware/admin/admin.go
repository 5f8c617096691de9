package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/render"

	resp "go-fairplay/internal/lib/api/response"
)

const tokenHeader = "X-Admin-Token"

// New gates round control and admin endpoints behind a shared token. The
// comparison is constant time so the token cannot be probed byte by byte.
func New(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(tokenHeader)

			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("forbidden", http.StatusForbidden))

				return
			}

			next.ServeHTTP(w, r)
		}

		return http.HandlerFunc(fn)
	}
}
