package acceptMessages

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

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	AcceptMessages *bool `json:"accept_messages" validate:"required"`
}

type Response struct {
	resp.Response
	IsAcceptingMessages bool `json:"is_accepting_messages"`
}

type AcceptanceStore interface {
	SetAcceptance(ctx context.Context, accountID int64, accepting bool) error
	Acceptance(ctx context.Context, accountID int64) (bool, error)
}

// NewUpdate overwrites the caller's acceptance flag.
func NewUpdate(
	log *slog.Logger,
	validate *validator.Validate,
	service AcceptanceStore,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.acceptMessages.NewUpdate"

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

		accepting := *req.AcceptMessages

		if err := service.SetAcceptance(ctx, identity.ID, accepting); err != nil {
			if errors.Is(err, inbox.ErrAccountNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to update acceptance flag", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("acceptance flag updated", slog.Bool("accepting", accepting))

		render.JSON(w, r, Response{
			Response:            resp.OK("Message acceptance status updated successfully"),
			IsAcceptingMessages: accepting,
		})
	}
}

// NewStatus reads the caller's acceptance flag for the dashboard.
func NewStatus(
	log *slog.Logger,
	service AcceptanceStore,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.acceptMessages.NewStatus"

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

		accepting, err := service.Acceptance(ctx, identity.ID)
		if err != nil {
			if errors.Is(err, inbox.ErrAccountNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to read acceptance flag", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:            resp.OK(""),
			IsAcceptingMessages: accepting,
		})
	}
}
