package logout

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"whisper_service/internal/auth"
	"whisper_service/internal/http_server/middleware/authn"
	resp "whisper_service/internal/lib/api/response"
	sl "whisper_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

type SessionRevoker interface {
	Logout(ctx context.Context, token string) error
}

func New(
	log *slog.Logger,
	service SessionRevoker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		token := authn.TokenFromRequest(r)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := service.Logout(ctx, token); err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Not Authenticated"))

				return
			}

			log.Error("failed to logout user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("user logged out successfully")

		render.JSON(w, r, Response{
			Response: resp.OK("Logged out successfully"),
		})
	}
}
