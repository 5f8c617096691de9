package verify

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/fair"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/logger/sl"
)

type Request struct {
	ServerSeed string `json:"server_seed" validate:"required"`
	SeedHash   string `json:"seed_hash" validate:"required,len=64,hexadecimal"`
	ClientSeed string `json:"client_seed" validate:"required"`
	Nonce      int64  `json:"nonce" validate:"required,min=1"`
}

type Response struct {
	resp.Response
	CrashPoint int64 `json:"crash_point"`
}

// Verify recomputes a round outcome from published inputs. It touches no
// storage, so anyone can check any historical round against the commitment
// that preceded it.
type Verify struct {
	log       *slog.Logger
	validator *validator.Validate
}

func NewVerify(log *slog.Logger) *Verify {
	return &Verify{
		log:       log,
		validator: validator.New(),
	}
}

func (h *Verify) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.fair.verify.New"

		log := h.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode request body", http.StatusBadRequest))

			return
		}

		if err := h.validator.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		crash, err := fair.VerifyOutcome(req.ServerSeed, req.SeedHash, req.ClientSeed, req.Nonce)
		if err != nil {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, resp.Error("server seed does not match commitment", http.StatusUnprocessableEntity))

			return
		}

		render.JSON(w, r, Response{
			Response:   resp.OK(),
			CrashPoint: crash,
		})
	}
}
