package messages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"whisper_service/internal/http_server/middleware/authn"
	"whisper_service/internal/inbox"
	resp "whisper_service/internal/lib/api/response"
	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Messages []models.Message `json:"messages"`
}

type MessageLister interface {
	Messages(ctx context.Context, accountID int64) ([]models.Message, error)
}

// New lists the caller's inbox. No pagination; the order is whatever the
// store preserved.
func New(
	log *slog.Logger,
	service MessageLister,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.messages.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		identity, ok := authn.IdentityFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Not Authenticated"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msgs, err := service.Messages(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, inbox.ErrAccountNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to list messages", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		if msgs == nil {
			msgs = []models.Message{}
		}

		render.JSON(w, r, Response{
			Response: resp.OK(""),
			Messages: msgs,
		})
	}
}
