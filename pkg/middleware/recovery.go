package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/utafrali/paycheckout/pkg/httpclient"
	"github.com/utafrali/paycheckout/pkg/httputil"
)

// Recovery recovers from panics and answers with a 500 error body.
func Recovery(l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					l.ErrorContext(r.Context(), "panic recovered",
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)

					httputil.WriteErrorBody(w, r, http.StatusInternalServerError, httpclient.ErrorBody{
						Name:    "INTERNAL_SERVER_ERROR",
						Message: "An internal server error has occurred.",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
