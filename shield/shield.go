// Package shield holds the HTTP middleware in front of the control API:
// security headers, body limits, HEAD handling and per-request trace ids.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack(logger) {
//		r.Use(mw)
//	}
package shield

import (
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request logger.
const LoggerKey contextKey = "shield_logger"

// APIStack returns the middleware for a JSON control API, outermost first:
// HeadToGet, SecurityHeaders, MaxBody(64 KiB), TraceID.
func APIStack(logger *slog.Logger) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(APIHeaders()),
		MaxBody(64 * 1024),
		TraceID(logger),
	}
}
