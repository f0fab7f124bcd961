package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/tracing"
)

// Tracing opens a root span per sampled request, keyed by the request id,
// and logs the finished span tree. It must run inside RequestID.
func Tracing(t *tracing.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := t.Start(r.Context(), r.Method+" "+normalizePath(r.URL.Path), logger.QueryID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			span.Log(ctx)
		})
	}
}
