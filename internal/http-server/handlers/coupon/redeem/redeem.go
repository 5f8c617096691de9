package redeem

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/coupon"
	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/sl"
)

type Request struct {
	UserUUID string `json:"user_uuid" validate:"required,uuid"`
	Code     string `json:"code" validate:"required,min=3"`
}

type Response struct {
	resp.Response
	Reward  string `json:"reward"`
	Balance string `json:"balance"`
}

type UserFinder interface {
	FindUserByUUID(uuid string) (*model.User, error)
}

type CouponRedeemer interface {
	Redeem(code string, userID int64) (*model.Transaction, error)
}

type Redeem struct {
	log       *slog.Logger
	validator *validator.Validate
	users     UserFinder
	redeemer  CouponRedeemer
}

func NewRedeem(log *slog.Logger, users UserFinder, redeemer CouponRedeemer) *Redeem {
	return &Redeem{
		log:       log,
		validator: validator.New(),
		users:     users,
		redeemer:  redeemer,
	}
}

func (h *Redeem) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coupon.redeem.New"

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

		credit, err := h.redeemer.Redeem(req.Code, user.ID)
		if err != nil {
			log.Error("failed to redeem coupon", sl.Err(err))

			status, msg := classify(err)

			render.Status(r, status)
			render.JSON(w, r, resp.Error(msg, status))

			return
		}

		log.Info("coupon redeemed",
			slog.String("code", req.Code),
			sl.Int64("user_id", user.ID),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Reward:   converter.CentsToString(credit.Amount),
			Balance:  converter.CentsToString(credit.BalanceAfter),
		})
	}
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, coupon.ErrCouponNotFound):
		return http.StatusNotFound, "coupon not found"
	case errors.Is(err, coupon.ErrCouponAlreadyUsed):
		return http.StatusConflict, "coupon already redeemed"
	case errors.Is(err, coupon.ErrCouponInactive):
		return http.StatusConflict, "coupon is not active"
	case errors.Is(err, coupon.ErrCouponExpired):
		return http.StatusGone, "coupon has expired"
	case errors.Is(err, coupon.ErrCouponExhausted):
		return http.StatusConflict, "coupon has no uses left"
	default:
		return http.StatusInternalServerError, "failed to redeem coupon"
	}
}
