package httpx

import (
	"net/http"

	"github.com/aussiebroadwan/scagate/pkg/slogx"
)

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares left to right: Chain(h, A, B) runs A, then B,
// then h.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recover turns a handler panic into a 500 with a tppMessages body.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					slogx.FromContext(r.Context()).Error("panic recovered", "panic", rec)
					WriteJSON(w, http.StatusInternalServerError, map[string]any{
						"tppMessages": []map[string]string{{
							"category": "ERROR",
							"code":     "INTERNAL_SERVER_ERROR",
							"text":     "internal error",
						}},
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
