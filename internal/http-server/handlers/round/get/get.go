package get

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/sl"
)

type Response struct {
	resp.Response
	UUID         string             `json:"uuid"`
	Game         config.Game        `json:"game"`
	Nonce        int64              `json:"nonce"`
	Status       config.RoundStatus `json:"status"`
	SeedHash     string             `json:"seed_hash"`
	ClientSeed   string             `json:"client_seed"`
	ServerSeed   *string            `json:"server_seed,omitempty"`
	CrashPoint   *int64             `json:"crash_point,omitempty"`
	TotalBets    int64              `json:"total_bets"`
	TotalWagered string             `json:"total_wagered"`
	TotalPayout  string             `json:"total_payout"`
	PlayerCount  int64              `json:"player_count"`
	CreatedAt    string             `json:"created_at"`
}

type RoundFinder interface {
	FindRoundByUUID(uuid string) (*model.GameRound, error)
}

type RoundGet struct {
	log    *slog.Logger
	rounds RoundFinder
}

func NewRoundGet(log *slog.Logger, rounds RoundFinder) *RoundGet {
	return &RoundGet{
		log:    log,
		rounds: rounds,
	}
}

// New returns the public view of a round. The server seed only appears once
// the round is terminal; before that the column is NULL and the field is
// omitted.
func (h *RoundGet) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.round.get.New"

		log := h.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uuidStr := chi.URLParam(r, "uuid")

		round, err := h.rounds.FindRoundByUUID(uuidStr)
		if err != nil {
			log.Error("failed to find round", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to find round", http.StatusInternalServerError))

			return
		}

		if round == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("round not found", http.StatusNotFound))

			return
		}

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			UUID:         round.UUID.String(),
			Game:         round.Game,
			Nonce:        round.Nonce,
			Status:       round.Status,
			SeedHash:     round.SeedHash,
			ClientSeed:   round.ClientSeed,
			ServerSeed:   round.ServerSeed,
			CrashPoint:   round.CrashPoint,
			TotalBets:    round.TotalBets,
			TotalWagered: converter.CentsToString(round.TotalWagered),
			TotalPayout:  converter.CentsToString(round.TotalPayout),
			PlayerCount:  round.PlayerCount,
			CreatedAt:    round.CreatedAt.Format(time.RFC3339),
		})
	}
}
