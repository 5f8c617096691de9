package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/pusher/pusher-http-go/v5"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/balance"
	"go-fairplay/internal/bet"
	"go-fairplay/internal/config"
	"go-fairplay/internal/coupon"
	"go-fairplay/internal/fair"
	adminadjust "go-fairplay/internal/http-server/handlers/admin/adjust"
	betplace "go-fairplay/internal/http-server/handlers/bet/place"
	couponcreate "go-fairplay/internal/http-server/handlers/coupon/create"
	couponget "go-fairplay/internal/http-server/handlers/coupon/get"
	couponredeem "go-fairplay/internal/http-server/handlers/coupon/redeem"
	"go-fairplay/internal/http-server/handlers/event"
	fairverify "go-fairplay/internal/http-server/handlers/fair/verify"
	"go-fairplay/internal/http-server/handlers/job"
	"go-fairplay/internal/http-server/handlers/mysql"
	roundget "go-fairplay/internal/http-server/handlers/round/get"
	roundresolve "go-fairplay/internal/http-server/handlers/round/resolve"
	roundstart "go-fairplay/internal/http-server/handlers/round/start"
	userbalance "go-fairplay/internal/http-server/handlers/user/balance"
	usertransactions "go-fairplay/internal/http-server/handlers/user/transactions"
	adminmw "go-fairplay/internal/http-server/middleware/admin"
	"go-fairplay/internal/http-server/middleware/logger"
	"go-fairplay/internal/http-server/model"
	"go-fairplay/internal/ledger"
	"go-fairplay/internal/lib/converter"
	"go-fairplay/internal/lib/logger/handler/slogpretty"
	"go-fairplay/internal/lib/logger/sl"
	"go-fairplay/internal/repository"
	"go-fairplay/internal/round"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting api server", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	db, err := sql.Open("mysql", cfg.Storage.DSN)
	if err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	if err = db.Ping(); err != nil {
		log.Error("failed to init storage", sl.Err(err))
		os.Exit(1)
	}

	handler := mysql.New(db)

	notifier, err := setupNotifier(log, cfg)
	if err != nil {
		log.Error("failed to init event notifier", sl.Err(err))
		os.Exit(1)
	}

	txManager := repository.NewRepository(*handler)
	userRepo := repository.NewUserRepository(*handler)
	roundRepo := repository.NewRoundRepository(*handler)
	betRepo := repository.NewBetRepository(*handler)
	couponRepo := repository.NewCouponRepository(*handler)
	transactionRepo := repository.NewTransactionLedgerRepository(*handler)

	queue := job.NewQueue(cfg.Casino.JobQueueSize)
	pool := job.NewWorkerPool(cfg.Casino.WorkerCount, queue)
	pool.Start()

	led := ledger.New(log, txManager, userRepo, transactionRepo)

	balanceStore := balance.New(log, transactionRepo, userRepo)
	led.Subscribe(balanceStore.OnTransaction)

	led.Subscribe(func(txn model.Transaction) {
		user, err := userRepo.GetUserByID(txn.UserID)
		if err != nil {
			log.Error("failed to resolve user for balance event", sl.Err(err))

			return
		}

		queue.Dispatch(&job.SendEventJob{
			Notifier: notifier,
			Channel:  fmt.Sprintf("user.%s", user.UUID),
			Event:    "balance.updated",
			Data: map[string]interface{}{
				"seq":           txn.Seq,
				"amount":        converter.CentsToAmount(txn.Amount),
				"balance_after": converter.CentsToAmount(txn.BalanceAfter),
				"reason":        string(txn.Reason),
			},
		}, 0)
	})

	commitments := fair.NewCommitmentManager()

	recorder := bet.NewRecorder(log, txManager, roundRepo, betRepo, led)
	lifecycle := round.NewLedger(log, roundRepo, commitments, betRepo, recorder)
	redeemer := coupon.NewRedeemer(log, txManager, couponRepo, led)

	startHandler := roundstart.NewRoundStart(log, lifecycle, notifier, queue, cfg.Casino.BettingWindow)
	resolveHandler := roundresolve.NewRoundResolve(log, lifecycle)
	getHandler := roundget.NewRoundGet(log, roundRepo)
	placeHandler := betplace.NewPlaceBet(log, userRepo, roundRepo, recorder)
	redeemHandler := couponredeem.NewRedeem(log, userRepo, redeemer)
	createHandler := couponcreate.NewCreate(log, redeemer)
	couponGetHandler := couponget.NewCouponGet(log, couponRepo)
	balanceHandler := userbalance.NewUserBalance(log, userRepo, balanceStore)
	transactionsHandler := usertransactions.NewUserTransactions(log, userRepo, transactionRepo)
	adjustHandler := adminadjust.NewAdjust(log, userRepo, led)
	verifyHandler := fairverify.NewVerify(log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.New(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.URLFormat)

	router.Get("/rounds/{uuid}", getHandler.New())
	router.Post("/bets", placeHandler.New())
	router.Post("/coupons/redeem", redeemHandler.New())
	router.Get("/users/{uuid}/balance", balanceHandler.New())
	router.Get("/users/{uuid}/transactions", transactionsHandler.New())
	router.Post("/fair/verify", verifyHandler.New())

	router.Group(func(r chi.Router) {
		r.Use(adminmw.New(cfg.HTTPServer.AdminToken))

		r.Post("/rounds", startHandler.New())
		r.Post("/rounds/{uuid}/resolve", resolveHandler.New())
		r.Post("/coupons", createHandler.New())
		r.Get("/coupons/{code}", couponGetHandler.New())
		r.Post("/admin/balance", adjustHandler.New())
	})

	log.Info("server started", slog.String("address", cfg.HTTPServer.Address))

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	if err = srv.ListenAndServe(); err != nil {
		log.Error("server failed", sl.Err(err))
	}

	log.Error("server stopped")
}

// setupNotifier prefers pusher when configured and falls back to the
// in-house ws hub otherwise.
func setupNotifier(log *slog.Logger, cfg *config.Config) (event.Notifier, error) {
	if cfg.Pusher.AppID != "" {
		client := &pusher.Client{
			AppID:   cfg.Pusher.AppID,
			Key:     cfg.Pusher.Key,
			Secret:  cfg.Pusher.Secret,
			Cluster: cfg.Pusher.Cluster,
		}

		return event.NewPusherEvent(log, client), nil
	}

	conn, _, err := websocket.DefaultDialer.Dial(cfg.Pusher.WSAddr, nil)
	if err != nil {
		return nil, err
	}

	return event.NewSocketEvent(log, conn), nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlogLogger()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return log
}

func setupPrettySlogLogger() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
