package middleware

import (
	"net/http"

	"github.com/frahmantamala/ngo-accountability/pkg/logger"

	"github.com/google/uuid"
)

// TraceID correlates a request across the bank gateway, this API and the
// ledger. Callers may supply their own X-Trace-ID; otherwise one is minted
// here. The id is echoed on the response and attached to the context logger
// so every log line for the request carries it.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get("X-Trace-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)

		w.Header().Set("X-Trace-ID", traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
