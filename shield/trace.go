package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/tabnotify/kit"
)

// TraceID tags each request with a short random id, stored under
// kit.TraceIDKey, echoed in X-Trace-ID, and attached to a per-request
// logger retrievable with GetLogger.
func TraceID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b := make([]byte, 4)
			rand.Read(b)
			id := hex.EncodeToString(b)

			w.Header().Set("X-Trace-ID", id)
			reqLog := logger.With("trace_id", id, "method", r.Method, "path", r.URL.Path)
			reqLog.Debug("request", "remote_addr", r.RemoteAddr)

			ctx := kit.WithTraceID(r.Context(), id)
			ctx = context.WithValue(ctx, LoggerKey, reqLog)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLogger returns the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
