package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"reparaturbonus/internal/domain/model"
	"reparaturbonus/internal/domain/ports/repository"
	"reparaturbonus/internal/infra/metrics"
)

type statsSource interface {
	Stats(ctx context.Context, tx repository.Tx, now time.Time) (*model.BonusStats, error)
}

// StatsReporter periodically snapshots code states into gauges. Expiry is
// computed, not stored, so the expired count only moves when someone looks.
type StatsReporter struct {
	interval time.Duration
	codes    statsSource
	now      func() time.Time
	log      *zerolog.Logger

	lastExpired int
}

func NewStatsReporter(interval time.Duration, codes statsSource, logger *zerolog.Logger) *StatsReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "StatsReporter").Logger()
	return &StatsReporter{interval: interval, codes: codes, now: time.Now, log: &l, lastExpired: -1}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting stats reporter")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping stats reporter")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *StatsReporter) tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	st, err := w.codes.Stats(runCtx, repository.NoTX, w.now())
	if err != nil {
		w.log.Error().Err(err).Msg("stats reporter error")
		return
	}
	metrics.SetCodeStates(st.Open, st.Used, st.Expired, st.DisbursedAmount)
	if w.lastExpired >= 0 && st.Expired > w.lastExpired {
		w.log.Info().Int("count", st.Expired-w.lastExpired).Msg("bonus codes expired unused")
	}
	w.lastExpired = st.Expired
}
