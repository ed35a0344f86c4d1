package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/promohub/promohub-api/internal/pkg/logger"
	"github.com/promohub/promohub-api/internal/pkg/response"
)

// Recover converts a panic into the standard 500 envelope. The request id is
// echoed in details so an operator can find the stack trace.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.FromContext(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Panic recovered")
			response.ErrorWithDetails(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", map[string]string{
				"request_id": GetRequestID(r.Context()),
			})
		}()

		next.ServeHTTP(w, r)
	})
}
