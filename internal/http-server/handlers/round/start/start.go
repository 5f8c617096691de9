package start

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"go-fairplay/internal/config"
	"go-fairplay/internal/http-server/handlers/event"
	"go-fairplay/internal/http-server/handlers/job"
	"go-fairplay/internal/http-server/model"
	resp "go-fairplay/internal/lib/api/response"
	"go-fairplay/internal/lib/logger/sl"
)

type Request struct {
	Game       config.Game `json:"game" validate:"required"`
	ClientSeed string      `json:"client_seed"`
}

type Response struct {
	resp.Response
	UUID     string `json:"uuid"`
	Nonce    int64  `json:"nonce"`
	SeedHash string `json:"seed_hash"`
}

type Lifecycle interface {
	Open(game config.Game, clientSeed string) (*model.GameRound, error)
	Run(roundUUID string) (*model.GameRound, error)
	Resolve(roundUUID string) (*model.GameRound, error)
}

type RoundStart struct {
	log           *slog.Logger
	validator     *validator.Validate
	lifecycle     Lifecycle
	notifier      event.Notifier
	queue         job.JobQueue
	bettingWindow time.Duration
}

func NewRoundStart(
	log *slog.Logger,
	lifecycle Lifecycle,
	notifier event.Notifier,
	queue job.JobQueue,
	bettingWindow time.Duration) *RoundStart {
	return &RoundStart{
		log:           log,
		validator:     validator.New(),
		lifecycle:     lifecycle,
		notifier:      notifier,
		queue:         queue,
		bettingWindow: bettingWindow,
	}
}

// New opens a round, moves it straight to RUNNING and schedules resolution
// once the betting window closes. The commitment hash goes out with the
// started event so players can record it before any outcome exists.
func (s *RoundStart) New() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.round.start.New"

		log := s.log.With(
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

		if err := s.validator.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		if !req.Game.Valid() {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("unknown game", http.StatusBadRequest))

			return
		}

		clientSeed := req.ClientSeed
		if clientSeed == "" {
			clientSeed = uuid.New().String()
		}

		opened, err := s.lifecycle.Open(req.Game, clientSeed)
		if err != nil {
			log.Error("failed to open round", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to open round", http.StatusInternalServerError))

			return
		}

		running, err := s.lifecycle.Run(opened.UUID.String())
		if err != nil {
			log.Error("failed to start round", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("failed to start round", http.StatusInternalServerError))

			return
		}

		log.Info("round started",
			slog.String("uuid", running.UUID.String()),
			sl.Int64("nonce", running.Nonce),
		)

		s.queue.Dispatch(&job.SendEventJob{
			Notifier: s.notifier,
			Channel:  string(running.Game),
			Event:    "round.started",
			Data: map[string]interface{}{
				"uuid":        running.UUID.String(),
				"nonce":       running.Nonce,
				"seed_hash":   running.SeedHash,
				"client_seed": running.ClientSeed,
			},
		}, 0)

		s.queue.Dispatch(&RoundResolveJob{
			Log:       s.log,
			Lifecycle: s.lifecycle,
			Notifier:  s.notifier,
			RoundUUID: running.UUID.String(),
		}, s.bettingWindow)

		render.JSON(w, r, Response{
			Response: resp.OK(),
			UUID:     running.UUID.String(),
			Nonce:    running.Nonce,
			SeedHash: running.SeedHash,
		})
	}
}
