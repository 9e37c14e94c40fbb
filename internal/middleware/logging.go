package middleware

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// responseWriter captures HTTP status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// ResolverLoggerExtension logs resolver execution times
type ResolverLoggerExtension struct{}

// ExtensionName names the extension in logs.
func (r *ResolverLoggerExtension) ExtensionName() string {
	return "ResolverLogger"
}

// InterceptField logs each resolver duration and errors
func (r *ResolverLoggerExtension) InterceptField(ctx context.Context, next graphql.Resolver) (res any, err error) {
	start := time.Now()
	res, err = next(ctx)
	duration := time.Since(start).Seconds() * 1000 //convert to ms
	if fc := graphql.GetFieldContext(ctx); fc != nil && fc.Field.Field != nil {
		log.Printf("[GRAPHQL] %s.%s took %.3fms, error: %v", fc.Object, fc.Field.Name, duration, err)
	}
	return res, err
}

// LoggingMiddleware tags each request with an id and logs it once served.
// A well-formed incoming X-Request-ID is kept.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id, err := uuid.Parse(r.Header.Get(RequestIDHeader))
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set(RequestIDHeader, id.String())
		ctx := context.WithValue(r.Context(), requestIDKey, id.String())

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		duration := time.Since(start)
		log.Printf("[HTTP] %s %s %d %s from %s request=%s", r.Method, r.URL.Path, rw.statusCode, duration, r.RemoteAddr, id)
	})
}

// RequestID returns the id LoggingMiddleware assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
