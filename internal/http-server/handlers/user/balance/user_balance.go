package balance

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/sl"
)

type Response struct {
	resp.Response
	Balance string `json:"balance"`
}

type UserFinder interface {
	FindUserByUUID(uuid string) (*model.User, error)
}

// BalanceSource is the cached ledger projection, not the balances table.
type BalanceSource interface {
	Balance(userID int64) (int64, error)
}

type UserBalance struct {
	log      *slog.Logger
	users    UserFinder
	balances BalanceSource
}

func NewUserBalance(log *slog.Logger, users UserFinder, balances BalanceSource) *UserBalance {
	return &UserBalance{
		log:      log,
		users:    users,
		balances: balances,
	}
}

func (h *UserBalance) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.balance.New"

		log := h.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		uuidStr := chi.URLParam(r, "uuid")

		user, err := h.users.FindUserByUUID(uuidStr)
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

		cents, err := h.balances.Balance(user.ID)
		if err != nil {
			log.Error("failed to get balance", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to get balance", http.StatusInternalServerError))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Balance:  converter.CentsToString(cents),
		})
	}
}
