// Package ledger applies farm operations to the remote counter store. This
// is the resilient part of the bot: every remote call runs under the shared
// retry policy, and an update that cannot reach the store is persisted to
// the pending queue instead of being lost or surfaced as a hard error.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/models"
	"github.com/pastelaria/aluminio-bot/internal/queue"
	"github.com/pastelaria/aluminio-bot/internal/retry"
	"github.com/pastelaria/aluminio-bot/internal/schedule"
)

// MaxAmount is the largest single operation accepted.
const MaxAmount = 10000

// Status classifies the outcome of one Apply call.
type Status int

const (
	// StatusApplied: an existing row's counter was updated.
	StatusApplied Status = iota
	// StatusCreated: the identity had no row; one was appended.
	StatusCreated
	// StatusUnregistered: withdraw for an identity without a row; nothing
	// written.
	StatusUnregistered
	// StatusNoFarmDay: writes are refused today; store untouched.
	StatusNoFarmDay
	// StatusQueued: the store was unreachable; the operation is durably
	// queued for replay.
	StatusQueued
	// StatusRejected: validation failed; never retried, never queued.
	StatusRejected
)

// Outcome reports what happened to one operation. Identity, Amount and Kind
// echo the attempt so every user-facing reply can name them.
type Outcome struct {
	Status   Status
	Identity string
	Amount   int
	Kind     models.Kind
	Slot     schedule.Slot
	NewTotal int
	Reason   string // set for StatusRejected
}

// AppliedEvent is published after a successful update.
type AppliedEvent struct {
	OperationID string      `json:"operation_id"`
	Identity    string      `json:"identity"`
	Amount      int         `json:"amount"`
	Kind        models.Kind `json:"kind"`
	Section     string      `json:"section"`
	Column      int         `json:"column"`
	NewTotal    int         `json:"new_total"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// EventKey partitions applied events by member, so a consumer sees each
// member's updates in submission order.
func (e AppliedEvent) EventKey() string { return e.Identity }

// AppliedTopic is the event stream for completed operations.
const AppliedTopic = "operation_applied"

// Ledger coordinates validation, day routing, the retried store update and
// the queue fallback.
type Ledger struct {
	store     interfaces.SheetStore
	queue     *queue.Queue
	publisher interfaces.EventPublisher
	policy    retry.Policy
	clock     func() time.Time
	log       zerolog.Logger
}

func New(store interfaces.SheetStore, q *queue.Queue, publisher interfaces.EventPublisher, log zerolog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		queue:     q,
		publisher: publisher,
		policy:    retry.Default(),
		clock:     schedule.Now,
		log:       log.With().Str("component", "ledger").Logger(),
	}
}

// WithPolicy overrides the retry policy; used by tests to skip real sleeps.
func (l *Ledger) WithPolicy(p retry.Policy) *Ledger {
	l.policy = p
	return l
}

// WithClock overrides the time source; used by tests to pin the weekday.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	l.clock = clock
	return l
}

// Apply validates and applies one live operation. The store-unreachable case
// is not an error from the caller's point of view: the operation lands in
// the pending queue and the outcome says so.
func (l *Ledger) Apply(ctx context.Context, op models.Operation) (Outcome, error) {
	out := Outcome{Identity: op.Identity, Amount: op.Amount, Kind: op.Kind}

	if reason, ok := validate(op); !ok {
		out.Status = StatusRejected
		out.Reason = reason
		return out, nil
	}

	slot, err := schedule.SlotFor(l.clock())
	out.Slot = slot
	if errors.Is(err, schedule.ErrNoFarmDay) {
		out.Status = StatusNoFarmDay
		return out, nil
	}

	// Connectivity loss: trigger one reconnect, then queue rather than fail.
	if !l.store.Connected() {
		l.log.Warn().Msg("store handle absent, attempting reconnect")
		if err := l.store.Reconnect(ctx); err != nil {
			l.log.Error().Err(err).Msg("reconnect failed")
			return l.enqueue(op, out)
		}
	}

	total, status, err := l.update(ctx, op, slot)
	if err != nil {
		if interfaces.IsTransient(err) {
			l.log.Warn().Err(err).Str("identity", op.Identity).
				Msg("retries exhausted, queueing operation")
			return l.enqueue(op, out)
		}
		return out, err
	}

	out.Status = status
	out.NewTotal = total
	l.publish(op, slot, total)
	l.log.Info().
		Str("identity", op.Identity).
		Int("amount", op.Amount).
		Str("kind", string(op.Kind)).
		Str("section", slot.Section).
		Int("column", slot.Column).
		Int("total", total).
		Msg("operation applied")
	return out, nil
}

// Replay applies a queued operation. It never enqueues: the queue itself
// tracks the attempt count, and notifications are the caller's concern.
func (l *Ledger) Replay(ctx context.Context, op models.Operation) error {
	if reason, ok := validate(op); !ok {
		// invalid records cannot ever succeed; report success so the queue
		// removes them, and leave a trace
		l.log.Warn().Str("identity", op.Identity).Str("reason", reason).
			Msg("dropping invalid queued operation")
		return nil
	}
	slot, err := schedule.SlotFor(l.clock())
	if errors.Is(err, schedule.ErrNoFarmDay) {
		// Sunday absorbs pending contributions without counting them; the
		// week is about to be reset anyway
		l.log.Warn().Str("identity", op.Identity).Int("amount", op.Amount).
			Msg("discarding queued operation on no-farm day")
		return nil
	}
	total, _, err := l.update(ctx, op, slot)
	if err != nil {
		return err
	}
	l.publish(op, slot, total)
	return nil
}

// update runs the optimistic read-modify-write against the routed cell.
// Each remote call is individually wrapped by the retry policy so find, read,
// write and append share identical semantics.
func (l *Ledger) update(ctx context.Context, op models.Operation, slot schedule.Slot) (int, Status, error) {
	var row int
	err := l.policy.Do(ctx, interfaces.IsTransient, func() error {
		var findErr error
		row, findErr = l.store.FindRow(ctx, slot.Section, op.Identity)
		return findErr
	})

	if errors.Is(err, interfaces.ErrRowNotFound) {
		if op.Kind == models.Withdraw {
			// no row is created for a withdraw: the identity is not a member
			return 0, StatusUnregistered, nil
		}
		if err := l.appendRow(ctx, op, slot); err != nil {
			return 0, 0, err
		}
		return op.Amount, StatusCreated, nil
	}
	if err != nil {
		return 0, 0, err
	}

	var current int
	err = l.policy.Do(ctx, interfaces.IsTransient, func() error {
		var readErr error
		current, readErr = l.store.ReadCell(ctx, slot.Section, row, slot.Column)
		return readErr
	})
	if err != nil {
		return 0, 0, err
	}

	total := current + op.Amount
	if op.Kind == models.Withdraw {
		total = current - op.Amount
		if total < 0 {
			// counters never go below zero
			total = 0
		}
	}

	err = l.policy.Do(ctx, interfaces.IsTransient, func() error {
		return l.store.WriteCell(ctx, slot.Section, row, slot.Column, total)
	})
	if err != nil {
		return 0, 0, err
	}
	return total, StatusApplied, nil
}

// appendRow creates the identity's row: identity in column 1, the amount in
// the routed column, blanks between.
func (l *Ledger) appendRow(ctx context.Context, op models.Operation, slot schedule.Slot) error {
	cells := make([]string, slot.Column)
	cells[0] = op.Identity
	cells[slot.Column-1] = fmt.Sprintf("%d", op.Amount)
	return l.policy.Do(ctx, interfaces.IsTransient, func() error {
		return l.store.AppendRow(ctx, slot.Section, cells)
	})
}

func (l *Ledger) enqueue(op models.Operation, out Outcome) (Outcome, error) {
	if err := l.queue.Enqueue(op); err != nil {
		return out, fmt.Errorf("ledger: queue fallback: %w", err)
	}
	out.Status = StatusQueued
	return out, nil
}

func (l *Ledger) publish(op models.Operation, slot schedule.Slot, total int) {
	if l.publisher == nil {
		return
	}
	event := AppliedEvent{
		OperationID: op.ID,
		Identity:    op.Identity,
		Amount:      op.Amount,
		Kind:        op.Kind,
		Section:     slot.Section,
		Column:      slot.Column,
		NewTotal:    total,
		OccurredAt:  l.clock(),
	}
	if err := l.publisher.Publish(AppliedTopic, event); err != nil {
		// events are best-effort; the update itself already succeeded
		l.log.Error().Err(err).Msg("publish applied event")
	}
}

func validate(op models.Operation) (string, bool) {
	if op.Identity == "" {
		return "passaporte ausente", false
	}
	for _, r := range op.Identity {
		if r < '0' || r > '9' {
			return "formato de passaporte inválido (deve conter apenas números)", false
		}
	}
	if op.Amount <= 0 || op.Amount > MaxAmount {
		return "quantidade inválida", false
	}
	return "", true
}
