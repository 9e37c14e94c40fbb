package middleware

import (
	"context"
	"net/http"

	"github.com/rpattn/netgql/internal/entityloader"
	"github.com/rpattn/netgql/internal/repository"
)

type ctxKey string

const (
	loadersKey   ctxKey = "loaders"
	requestIDKey ctxKey = "requestID"
)

// DataLoaderMiddleware attaches fresh loaders to each request context.
func DataLoaderMiddleware(store repository.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithLoaders(r.Context(), entityloader.NewLoaders(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithLoaders returns a context carrying loaders.
func WithLoaders(ctx context.Context, loaders *entityloader.Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}

// LoadersFromContext retrieves the request loaders, nil when none are attached.
func LoadersFromContext(ctx context.Context) *entityloader.Loaders {
	if l, ok := ctx.Value(loadersKey).(*entityloader.Loaders); ok {
		return l
	}
	return nil
}
