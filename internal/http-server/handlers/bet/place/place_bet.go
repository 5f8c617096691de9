package place

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/bet"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/ledger"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/sl"
)

type Request struct {
	UserUUID  string  `json:"user_uuid" validate:"required,uuid"`
	RoundUUID string  `json:"round_uuid" validate:"required,uuid"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	// Cashout is the auto-cashout multiplier, e.g. 2.00. Zero means the
	// player never cashes out and the bet can only lose.
	Cashout float64 `json:"cashout" validate:"omitempty,gt=1"`
}

type Response struct {
	resp.Response
	BetUUID string `json:"bet_uuid"`
	Wager   string `json:"wager"`
}

type UserFinder interface {
	FindUserByUUID(uuid string) (*model.User, error)
}

type RoundFinder interface {
	FindRoundByUUID(uuid string) (*model.GameRound, error)
}

//go:generate go run github.com/vektra/mockery/v2@v2.28.2 --name=BetPlacer
type BetPlacer interface {
	PlaceBet(userID int64, roundID int64, wagerCents int64, cashoutCents int64) (*model.Bet, error)
}

type PlaceBet struct {
	log       *slog.Logger
	validator *validator.Validate
	users     UserFinder
	rounds    RoundFinder
	placer    BetPlacer
}

func NewPlaceBet(
	log *slog.Logger,
	users UserFinder,
	rounds RoundFinder,
	placer BetPlacer) *PlaceBet {
	return &PlaceBet{
		log:       log,
		validator: validator.New(),
		users:     users,
		rounds:    rounds,
		placer:    placer,
	}
}

func (h *PlaceBet) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.bet.place.New"

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

		user, err := h.users.FindUserByUUID(req.UserUUID)
		if err != nil {
			log.Error("failed to find user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to find user", http.StatusInternalServerError))

			return
		}

		if user == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("user not found", http.StatusNotFound))

			return
		}

		round, err := h.rounds.FindRoundByUUID(req.RoundUUID)
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

		wagerCents := converter.AmountToCents(req.Amount)
		cashoutCents := converter.AmountToCents(req.Cashout)

		placed, err := h.placer.PlaceBet(user.ID, round.ID, wagerCents, cashoutCents)
		if err != nil {
			log.Error("failed to place bet", sl.Err(err))

			status := http.StatusInternalServerError
			msg := "failed to place bet"

			switch {
			case errors.Is(err, bet.ErrRoundNotRunning):
				status = http.StatusConflict
				msg = "round is not accepting bets"
			case errors.Is(err, ledger.ErrInsufficientFunds):
				status = http.StatusPaymentRequired
				msg = "insufficient balance"
			case errors.Is(err, bet.ErrInvalidWager):
				status = http.StatusBadRequest
				msg = "wager must be positive"
			}

			render.Status(r, status)
			render.JSON(w, r, resp.Error(msg, status))

			return
		}

		log.Info("bet placed",
			slog.String("bet_uuid", placed.UUID.String()),
			sl.Int64("user_id", user.ID),
			sl.Int64("wager", wagerCents),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			BetUUID:  placed.UUID.String(),
			Wager:    converter.CentsToString(placed.Wager),
		})
	}
}
