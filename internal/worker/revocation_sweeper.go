package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/medinotes/pkg/logger"
	"github.com/jwalitptl/medinotes/pkg/metrics"
)

// ExpiredRevocations is the part of the revocation store the sweeper needs.
type ExpiredRevocations interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevocationSweeper periodically deletes revocations for tokens that have
// expired. An expired token is rejected on its exp claim alone, so its row
// is dead weight.
type RevocationSweeper struct {
	repo     ExpiredRevocations
	interval time.Duration
	grace    time.Duration
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewRevocationSweeper(repo ExpiredRevocations, interval, grace time.Duration, l *logger.Logger, m *metrics.Metrics) *RevocationSweeper {
	return &RevocationSweeper{
		repo:     repo,
		interval: interval,
		grace:    grace,
		log:      l.With("revocation_sweeper"),
		metrics:  m,
		now:      time.Now,
	}
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (w *RevocationSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("worker started", "interval", w.interval.String())
	for {
		if err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
			w.log.Error(err, "revocation sweep failed")
		}
		select {
		case <-ctx.Done():
			w.log.Info("worker shutting down")
			return
		case <-ticker.C:
		}
	}
}

// Sweep deletes revocations whose token expired more than grace ago.
func (w *RevocationSweeper) Sweep(ctx context.Context) error {
	cutoff := w.now().Add(-w.grace)

	rows, err := w.repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		if w.metrics != nil {
			w.metrics.SweepFailures.Inc()
		}
		return fmt.Errorf("failed to sweep revocations: %w", err)
	}
	if w.metrics != nil {
		w.metrics.RevocationsSwept.Add(float64(rows))
	}
	if rows > 0 {
		w.log.Info("swept expired revocations", "rows", rows, "cutoff", cutoff.Format(time.RFC3339))
	}
	return nil
}
