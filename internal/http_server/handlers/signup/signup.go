package signup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"whisper_service/internal/accounts"
	resp "whisper_service/internal/lib/api/response"
	sl "whisper_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email"`
	Pass     string `json:"password" validate:"required,min=6"`
}

type Response struct {
	resp.Response
	AccountID int64 `json:"account_id,omitempty"`
}

type Registerer interface {
	Register(ctx context.Context, username, email, password string) (int64, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	service Registerer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

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

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		accountID, err := service.Register(ctx, req.Username, req.Email, req.Pass)
		if err != nil {
			switch {
			case errors.Is(err, accounts.ErrUsernameTaken):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Username already exists"))

			case errors.Is(err, accounts.ErrEmailTaken):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Email already exists"))

			case errors.Is(err, accounts.ErrNotificationFailed):
				log.Error("failed to send verification email", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Error sending verification email"))

			default:
				log.Error("failed to register account", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Account registered", slog.Int64("id", accountID))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:  resp.OK("User registered successfully"),
			AccountID: accountID,
		})
	}
}
