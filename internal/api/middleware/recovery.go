package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mcoot/triviasync/internal/api/apierr"
	"github.com/mcoot/triviasync/internal/middleware"
)

// Recovery answers handler panics with the standard failure envelope so
// clients classify them like any other application error
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger.With(slog.String("component", "http")), writePanic)
}

func writePanic(w http.ResponseWriter, r *http.Request, err any) {
	apierr.WriteError(w, fmt.Errorf("%s %s: panic: %v", r.Method, r.URL.Path, err))
}
