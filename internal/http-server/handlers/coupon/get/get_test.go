package get

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/http-server/model"
)

type fakeCoupons struct {
	coupon    *model.Coupon
	redeemers []int64
}

func (f *fakeCoupons) FindCouponByCode(code string) (*model.Coupon, error) {
	if f.coupon == nil || f.coupon.Code != code {
		return nil, nil
	}

	snapshot := *f.coupon

	return &snapshot, nil
}

func (f *fakeCoupons) ListRedeemers(code string) ([]int64, error) {
	return f.redeemers, nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestRouter(coupons *fakeCoupons) *chi.Mux {
	log := slog.New(slog.NewTextHandler(nullWriter{}, nil))

	router := chi.NewRouter()
	router.Get("/coupons/{code}", NewCouponGet(log, coupons).New())

	return router
}

func TestCouponGet(t *testing.T) {
	t.Parallel()

	coupons := &fakeCoupons{
		coupon: &model.Coupon{
			Code:        "WELCOME",
			RewardCents: 2500,
			MaxUses:     10,
			CurrentUses: 2,
			IsActive:    true,
			ExpiresAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		redeemers: []int64{1, 2},
	}

	// the lowercase path parameter resolves case-insensitively
	req := httptest.NewRequest(http.MethodGet, "/coupons/welcome", nil)
	rec := httptest.NewRecorder()

	newTestRouter(coupons).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}

	if got.Code != "WELCOME" || got.Reward != "25.00" {
		t.Errorf("unexpected coupon view: %+v", got)
	}

	if got.CurrentUses != 2 || len(got.UsedBy) != 2 {
		t.Errorf("redeemer list not materialized: %+v", got)
	}
}

func TestCouponGetNotFound(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/coupons/MISSING", nil)
	rec := httptest.NewRecorder()

	newTestRouter(&fakeCoupons{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
