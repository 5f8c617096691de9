package start

import (
	"errors"

	"golang.org/x/exp/slog"

	"go-fairplay/internal/fair"
	"go-fairplay/internal/http-server/handlers/event"
	"go-fairplay/internal/lib/logger/sl"
	"go-fairplay/internal/round"
)

// RoundResolveJob closes out the round when the betting window expires. A
// manual resolve racing the job is harmless, the loser sees a guarded
// transition and backs off.
type RoundResolveJob struct {
	Log       *slog.Logger
	Lifecycle Lifecycle
	Notifier  event.Notifier
	RoundUUID string
}

func (job *RoundResolveJob) Execute() {
	resolved, err := job.Lifecycle.Resolve(job.RoundUUID)
	if err != nil {
		// someone resolved it first, nothing to announce
		if errors.Is(err, round.ErrInvalidTransition) {
			return
		}

		job.Log.Error("scheduled resolve failed",
			sl.Err(err),
			slog.String("uuid", job.RoundUUID),
		)

		if errors.Is(err, fair.ErrInvalidSeedReveal) || errors.Is(err, round.ErrCommitmentMismatch) {
			_ = job.Notifier.Trigger("rounds", "round.flagged", map[string]interface{}{
				"uuid": job.RoundUUID,
			})
		}

		return
	}

	_ = job.Notifier.Trigger(string(resolved.Game), "round.closed", map[string]interface{}{
		"uuid":        resolved.UUID.String(),
		"nonce":       resolved.Nonce,
		"server_seed": *resolved.ServerSeed,
		"crash_point": *resolved.CrashPoint,
	})
}
