package resolve

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/fair"
	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/logger/sl"
	"go-fairplay/internal/round"
)

type Response struct {
	resp.Response
	UUID       string `json:"uuid"`
	Nonce      int64  `json:"nonce"`
	ServerSeed string `json:"server_seed"`
	CrashPoint int64  `json:"crash_point"`
}

type Resolver interface {
	Resolve(roundUUID string) (*model.GameRound, error)
}

type RoundResolve struct {
	log      *slog.Logger
	resolver Resolver
}

func NewRoundResolve(log *slog.Logger, resolver Resolver) *RoundResolve {
	return &RoundResolve{
		log:      log,
		resolver: resolver,
	}
}

// New resolves a round on demand instead of waiting for the scheduled job.
func (h *RoundResolve) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.round.resolve.New"

		log := h.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uuidStr := chi.URLParam(r, "uuid")

		resolved, err := h.resolver.Resolve(uuidStr)
		if err != nil {
			log.Error("failed to resolve round", sl.Err(err))

			status := http.StatusInternalServerError
			msg := "failed to resolve round"

			switch {
			case errors.Is(err, round.ErrRoundNotFound):
				status = http.StatusNotFound
				msg = "round not found"
			case errors.Is(err, round.ErrInvalidTransition):
				status = http.StatusConflict
				msg = "round is not running"
			case errors.Is(err, fair.ErrInvalidSeedReveal),
				errors.Is(err, round.ErrCommitmentMismatch):
				status = http.StatusConflict
				msg = "round flagged, payouts frozen"
			}

			render.Status(r, status)
			render.JSON(w, r, resp.Error(msg, status))

			return
		}

		render.JSON(w, r, Response{
			Response:   resp.OK(),
			UUID:       resolved.UUID.String(),
			Nonce:      resolved.Nonce,
			ServerSeed: *resolved.ServerSeed,
			CrashPoint: *resolved.CrashPoint,
		})
	}
}
