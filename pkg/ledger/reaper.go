package ledger

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Reaper periodically releases abandoned authorization tickets.
type Reaper struct {
	gate   *Gate
	ttl    time.Duration
	cron   *cron.Cron
	logger zerolog.Logger
}

// NewReaper creates a reaper that releases tickets older than ttl.
func NewReaper(gate *Gate, ttl time.Duration, logger zerolog.Logger) *Reaper {
	return &Reaper{
		gate:   gate,
		ttl:    ttl,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the reaper to run every minute.
func (r *Reaper) Start() error {
	_, err := r.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		r.gate.ReleaseExpired(ctx, r.ttl)
	})
	if err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info().Dur("ttl", r.ttl).Msg("Ticket reaper started")
	return nil
}

// Stop stops the reaper and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
