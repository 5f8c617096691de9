package transactions

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

type Entry struct {
	Seq          int64         `json:"seq"`
	Amount       string        `json:"amount"`
	BalanceAfter string        `json:"balance_after"`
	Reason       config.Reason `json:"reason"`
	Description  string        `json:"description,omitempty"`
	Meta         model.Meta    `json:"meta,omitempty"`
	CreatedAt    string        `json:"created_at"`
}

type Response struct {
	resp.Response
	Transactions []Entry `json:"transactions"`
}

type UserFinder interface {
	FindUserByUUID(uuid string) (*model.User, error)
}

type TransactionLister interface {
	ListTransactionsByUser(userID int64) ([]model.Transaction, error)
}

type UserTransactions struct {
	log          *slog.Logger
	users        UserFinder
	transactions TransactionLister
}

func NewUserTransactions(
	log *slog.Logger,
	users UserFinder,
	transactions TransactionLister) *UserTransactions {
	return &UserTransactions{
		log:          log,
		users:        users,
		transactions: transactions,
	}
}

// New returns the user's full ledger chain in seq order.
func (h *UserTransactions) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.user.transactions.New"

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

		chain, err := h.transactions.ListTransactionsByUser(user.ID)
		if err != nil {
			log.Error("failed to list transactions", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to list transactions", http.StatusInternalServerError))

			return
		}

		entries := make([]Entry, 0, len(chain))

		for _, txn := range chain {
			entries = append(entries, Entry{
				Seq:          txn.Seq,
				Amount:       converter.CentsToString(txn.Amount),
				BalanceAfter: converter.CentsToString(txn.BalanceAfter),
				Reason:       txn.Reason,
				Description:  txn.Description,
				Meta:         txn.Meta,
				CreatedAt:    txn.CreatedAt.Format(time.RFC3339),
			})
		}

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			Transactions: entries,
		})
	}
}
