package get

import (
	"net/http"
	"strings"
	"time"

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
	Code        string  `json:"code"`
	Reward      string  `json:"reward"`
	MaxUses     int64   `json:"max_uses"`
	CurrentUses int64   `json:"current_uses"`
	UsedBy      []int64 `json:"used_by"`
	IsActive    bool    `json:"is_active"`
	ExpiresAt   string  `json:"expires_at"`
}

type CouponSource interface {
	FindCouponByCode(code string) (*model.Coupon, error)
	ListRedeemers(code string) ([]int64, error)
}

type CouponGet struct {
	log     *slog.Logger
	coupons CouponSource
}

func NewCouponGet(log *slog.Logger, coupons CouponSource) *CouponGet {
	return &CouponGet{
		log:     log,
		coupons: coupons,
	}
}

// New returns a coupon with its redeemer list materialized from the
// redemption rows.
func (h *CouponGet) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coupon.get.New"

		log := h.log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		code := strings.ToUpper(chi.URLParam(r, "code"))

		coupon, err := h.coupons.FindCouponByCode(code)
		if err != nil {
			log.Error("failed to find coupon", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to find coupon", http.StatusInternalServerError))

			return
		}

		if coupon == nil {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resp.Error("coupon not found", http.StatusNotFound))

			return
		}

		usedBy, err := h.coupons.ListRedeemers(code)
		if err != nil {
			log.Error("failed to list redeemers", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to list redeemers", http.StatusInternalServerError))

			return
		}

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			Code:        coupon.Code,
			Reward:      converter.CentsToString(coupon.RewardCents),
			MaxUses:     coupon.MaxUses,
			CurrentUses: coupon.CurrentUses,
			UsedBy:      usedBy,
			IsActive:    coupon.IsActive,
			ExpiresAt:   coupon.ExpiresAt.Format(time.RFC3339),
		})
	}
}
