// Package jobs holds periodic maintenance tasks.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/paperpilot/paperpilot/internal/core"
)

// Janitor sweeps documents stuck in processing: a hung remote call or parse
// would otherwise leave them in a non-terminal state forever.
type Janitor struct {
	db         core.DbClient
	staleAfter time.Duration
	logger     *zap.Logger
	cron       *cron.Cron
}

func NewJanitor(db core.DbClient, staleAfter time.Duration, logger *zap.Logger) *Janitor {
	return &Janitor{
		db:         db,
		staleAfter: staleAfter,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start schedules the sweep every 5 minutes until Stop is called.
func (j *Janitor) Start(ctx context.Context) error {
	_, err := j.cron.AddFunc("@every 5m", func() {
		j.sweep(ctx)
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep(ctx context.Context) {
	n, err := j.db.FailStaleProcessing(ctx, j.staleAfter)
	if err != nil {
		j.logger.Error("stale document sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Warn("marked stale documents as failed", zap.Int("count", n))
	}
}
