package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	resp "whisper_service/internal/lib/api/response"
	"whisper_service/internal/models"

	"github.com/go-chi/render"
)

type contextKey struct{}

var identityKey = contextKey{}

type IdentityProvider interface {
	Identity(ctx context.Context, token string) (models.Identity, error)
}

// New returns middleware that authenticates a Bearer session token and
// stores the identity it carries in the request context.
func New(log *slog.Logger, provider IdentityProvider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Not Authenticated"))

				return
			}

			identity, err := provider.Identity(r.Context(), token)
			if err != nil {
				log.Info("rejected session token", slog.String("path", r.URL.Path))

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Not Authenticated"))

				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the identity put there by the middleware.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)

	return identity, ok
}

// TokenFromRequest exposes the raw bearer token, for handlers that need
// it (logout revokes the exact token).
func TokenFromRequest(r *http.Request) string {
	return bearerToken(r)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return parts[1]
}
