package deleteMessage

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

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

type MessageDeleter interface {
	DeleteMessage(ctx context.Context, accountID int64, messageID string) error
}

// New deletes one message from the caller's inbox. A message id that was
// never there still succeeds.
func New(
	log *slog.Logger,
	service MessageDeleter,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.deleteMessage.New"

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

		messageID := chi.URLParam(r, "messageID")
		if messageID == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing message id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := service.DeleteMessage(ctx, identity.ID, messageID); err != nil {
			if errors.Is(err, inbox.ErrAccountNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to delete message", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("message deleted", slog.String("message_id", messageID))

		render.JSON(w, r, Response{
			Response: resp.OK("Message deleted successfully"),
		})
	}
}
