package sendMessage

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"whisper_service/internal/inbox"
	resp "whisper_service/internal/lib/api/response"
	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username" validate:"required,username"`
	Content  string `json:"content" validate:"required,min=1"`
}

type Response struct {
	resp.Response
	MessageID string `json:"message_id,omitempty"`
}

type MessageSender interface {
	SendMessage(ctx context.Context, recipientUsername, content string) (models.Message, error)
}

// New handles the anonymous send. There is no authentication here and no
// sender field anywhere in the request.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	service MessageSender,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sendMessage.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		msg, err := service.SendMessage(ctx, req.Username, req.Content)
		if err != nil {
			switch {
			case errors.Is(err, inbox.ErrRecipientNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

			case errors.Is(err, inbox.ErrNotAccepting):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("User is not accepting messages"))

			default:
				log.Error("failed to send message", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("message sent", slog.String("message_id", msg.ID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:  resp.OK("Message sent successfully"),
			MessageID: msg.ID,
		})
	}
}
