package login

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"whisper_service/internal/auth"
	resp "whisper_service/internal/lib/api/response"
	sl "whisper_service/internal/lib/logger"
	"whisper_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Identifier string `json:"identifier" validate:"required"`
	Pass       string `json:"password" validate:"required"`
}

type Response struct {
	resp.Response
	Token       string `json:"token"`
	AccountID   int64  `json:"account_id"`
	Username    string `json:"username"`
	IsVerified  bool   `json:"is_verified"`
	IsAccepting bool   `json:"is_accepting_messages"`
}

type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (string, models.Identity, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	service Authenticator,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.login.New"

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

		token, identity, err := service.Login(ctx, req.Identifier, req.Pass)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Invalid credentials"))

				return
			}
			if errors.Is(err, auth.ErrEmailNotVerified) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Please verify your account before login"))

				return
			}

			log.Error("failed to login user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("User logged in successfully")

		render.JSON(w, r, Response{
			Response:    resp.OK("Login successful"),
			Token:       token,
			AccountID:   identity.ID,
			Username:    identity.Username,
			IsVerified:  identity.IsVerified,
			IsAccepting: identity.IsAccepting,
		})
	}
}
