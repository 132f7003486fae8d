package verify

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
	Code     string `json:"code" validate:"required,len=6,numeric"`
}

type Response struct {
	resp.Response
}

type CodeVerifier interface {
	VerifyCode(ctx context.Context, username, code string) error
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	service CodeVerifier,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verify.New"

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

		if err := service.VerifyCode(ctx, req.Username, req.Code); err != nil {
			switch {
			case errors.Is(err, accounts.ErrAccountNotFound):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User not found"))

			case errors.Is(err, accounts.ErrAlreadyVerified):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("User already verified"))

			case errors.Is(err, accounts.ErrInvalidCode):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Invalid verification code"))

			case errors.Is(err, accounts.ErrCodeExpired):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Verification code has expired, please sign up again to get a new code"))

			default:
				log.Error("failed to verify account", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("account verified", slog.String("username", req.Username))

		render.JSON(w, r, Response{
			Response: resp.OK("Account verified successfully"),
		})
	}
}
