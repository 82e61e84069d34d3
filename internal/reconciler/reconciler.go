// Package reconciler runs the background maintenance loop: replaying the
// pending queue, keeping the store session alive and firing the weekly
// reset.
package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/ledger"
	"github.com/pastelaria/aluminio-bot/internal/queue"
	"github.com/pastelaria/aluminio-bot/internal/reset"
	"github.com/pastelaria/aluminio-bot/internal/schedule"
)

const DefaultInterval = 30 * time.Minute

type Reconciler struct {
	store    interfaces.SheetStore
	queue    *queue.Queue
	ledger   *ledger.Ledger
	reset    *reset.Coordinator
	interval time.Duration
	clock    func() time.Time
	log      zerolog.Logger
}

func New(store interfaces.SheetStore, q *queue.Queue, l *ledger.Ledger, r *reset.Coordinator, interval time.Duration, log zerolog.Logger) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		store:    store,
		queue:    q,
		ledger:   l,
		reset:    r,
		interval: interval,
		clock:    schedule.Now,
		log:      log.With().Str("component", "reconciler").Logger(),
	}
}

// WithClock overrides the time source; used by tests.
func (r *Reconciler) WithClock(clock func() time.Time) *Reconciler {
	r.clock = clock
	return r
}

// Run wakes every interval until ctx is canceled. Cancellation is honored at
// wake boundaries; a pass in progress finishes first.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info().Dur("interval", r.interval).Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single maintenance pass. Also called at startup, right
// after the chat session comes up.
func (r *Reconciler) RunOnce(ctx context.Context) {
	now := r.clock()

	if r.reset.Due(now) {
		r.log.Info().Msg("weekly reset window open")
		if err := r.reset.ResetWeekly(ctx); err != nil {
			r.log.Error().Err(err).Msg("weekly reset incomplete")
		}
	}

	if _, _, err := r.queue.DrainOnce(ctx, r.ledger.Replay); err != nil {
		r.log.Error().Err(err).Msg("queue drain failed")
	}

	if !r.store.Connected() {
		r.log.Warn().Msg("store session down, reconnecting")
		if err := r.store.Reconnect(ctx); err != nil {
			r.log.Error().Err(err).Msg("reconnect failed")
		} else {
			r.log.Info().Msg("store session re-established")
		}
	}
}
