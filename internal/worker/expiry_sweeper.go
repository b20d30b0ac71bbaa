package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/herd-api/pkg/civil"
	"github.com/jwalitptl/herd-api/pkg/clock"
	"github.com/jwalitptl/herd-api/pkg/logger"
)

// Expirer moves past-due pending alerts to expired.
type Expirer interface {
	ExpirePastDue(ctx context.Context, today civil.Date) (int64, error)
}

// ExpirySweeper expires past-due alerts on a fixed interval so expiry does
// not wait for someone to list alerts.
type ExpirySweeper struct {
	expirer  Expirer
	clock    clock.Clock
	interval time.Duration
	logger   *logger.Logger
}

func NewExpirySweeper(expirer Expirer, clk clock.Clock, interval time.Duration, logger *logger.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		expirer:  expirer,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}
}

// Start sweeps once immediately, then on every tick until ctx is done.
func (w *ExpirySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.Sweep(ctx); err != nil {
			w.logger.Error(err, "Expiry sweep failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep expires pending alerts dated before today and returns how many moved.
func (w *ExpirySweeper) Sweep(ctx context.Context) (int64, error) {
	return w.expirer.ExpirePastDue(ctx, w.clock.Today())
}
