package checkUsername

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "whisper_service/internal/lib/api/response"
	sl "whisper_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Response struct {
	resp.Response
}

type UsernameChecker interface {
	CheckUsername(ctx context.Context, username string) (bool, error)
}

// New handles the read-only username availability probe used by the
// signup form. Only verified accounts make a username unavailable.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	service UsernameChecker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.checkUsername.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		username := r.URL.Query().Get("username")

		if err := validate.Var(username, "required,username"); err != nil {
			log.Info("invalid username in query")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid query parameters"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		available, err := service.CheckUsername(ctx, username)
		if err != nil {
			log.Error("failed to check username", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Error checking username"))

			return
		}

		if !available {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Username is already taken"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK("Username is available"),
		})
	}
}
