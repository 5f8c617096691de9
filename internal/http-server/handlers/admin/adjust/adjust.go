package adjust

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/sl"
)

type Request struct {
	UserUUID  string `json:"user_uuid" validate:"required,uuid"`
	AdminUUID string `json:"admin_uuid" validate:"required,uuid"`
	// Amount may be negative; admin adjustments are the one reason allowed
	// to take a balance below zero.
	Amount float64 `json:"amount" validate:"required"`
	Note   string  `json:"note" validate:"required,min=3"`
}

type Response struct {
	resp.Response
	Seq     int64  `json:"seq"`
	Balance string `json:"balance"`
}

type UserFinder interface {
	FindUserByUUID(uuid string) (*model.User, error)
}

type LedgerApplier interface {
	Apply(userID int64, amount int64, reason config.Reason, description string, meta model.Meta) (*model.Transaction, error)
}

type Adjust struct {
	log       *slog.Logger
	validator *validator.Validate
	users     UserFinder
	ledger    LedgerApplier
}

func NewAdjust(log *slog.Logger, users UserFinder, ledger LedgerApplier) *Adjust {
	return &Adjust{
		log:       log,
		validator: validator.New(),
		users:     users,
		ledger:    ledger,
	}
}

func (h *Adjust) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.adjust.New"

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

		txn, err := h.ledger.Apply(user.ID, converter.AmountToCents(req.Amount), config.AdminAdjustment, req.Note, model.AdminMeta{
			AdminUUID: req.AdminUUID,
			Note:      req.Note,
		})
		if err != nil {
			log.Error("failed to apply adjustment", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to apply adjustment", http.StatusInternalServerError))

			return
		}

		log.Info("balance adjusted",
			sl.Int64("user_id", user.ID),
			sl.Int64("amount", txn.Amount),
			slog.String("admin_uuid", req.AdminUUID),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Seq:      txn.Seq,
			Balance:  converter.CentsToString(txn.BalanceAfter),
		})
	}
}
