package create

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/http-server/handlers/mysql"
	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/sl"
)

type Request struct {
	Code      string    `json:"code" validate:"required,min=3,max=32"`
	Reward    float64   `json:"reward" validate:"required,gt=0"`
	MaxUses   int64     `json:"max_uses" validate:"required,min=1"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

type Response struct {
	resp.Response
	Code string `json:"code"`
}

type CouponCreator interface {
	Create(code string, rewardCents int64, maxUses int64, expiresAt time.Time) (*model.Coupon, error)
}

type Create struct {
	log       *slog.Logger
	validator *validator.Validate
	creator   CouponCreator
}

func NewCreate(log *slog.Logger, creator CouponCreator) *Create {
	return &Create{
		log:       log,
		validator: validator.New(),
		creator:   creator,
	}
}

func (h *Create) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.coupon.create.New"

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

		if !req.ExpiresAt.After(time.Now()) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("expires_at must be in the future", http.StatusBadRequest))

			return
		}

		created, err := h.creator.Create(req.Code, converter.AmountToCents(req.Reward), req.MaxUses, req.ExpiresAt)
		if err != nil {
			log.Error("failed to create coupon", sl.Err(err))

			if mysql.IsDuplicateEntry(err) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("coupon code already exists", http.StatusConflict))

				return
			}

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to create coupon", http.StatusInternalServerError))

			return
		}

		log.Info("coupon created",
			slog.String("code", created.Code),
			sl.Int64("max_uses", created.MaxUses),
		)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Code:     created.Code,
		})
	}
}
