package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// PanicHandler writes the response for a request whose handler panicked
type PanicHandler func(w http.ResponseWriter, r *http.Request, err any)

// Recovery turns handler panics into a response from handler. Panics after a
// websocket upgrade are only logged since the connection no longer speaks HTTP.
func Recovery(logger *slog.Logger, handler PanicHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &ResponseWriter{ResponseWriter: w, status: http.StatusOK}

			defer func() {
				err := recover()
				if err == nil {
					return
				}
				upgraded := wrapped.Status() == http.StatusSwitchingProtocols
				logger.Error("panic recovered",
					slog.Any("error", err),
					slog.String("request_id", w.Header().Get(RequestIDHeader)),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("upgraded", upgraded),
					slog.String("stack", string(debug.Stack())),
				)
				if !upgraded {
					handler(w, r, err)
				}
			}()

			next.ServeHTTP(wrapped, r)
		})
	}
}

// DefaultPanicHandler returns a plain 500
func DefaultPanicHandler(w http.ResponseWriter, _ *http.Request, _ any) {
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}
