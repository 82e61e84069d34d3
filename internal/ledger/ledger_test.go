package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pastelaria/aluminio-bot/internal/models"
	"github.com/pastelaria/aluminio-bot/internal/queue"
	"github.com/pastelaria/aluminio-bot/internal/retry"
	"github.com/pastelaria/aluminio-bot/internal/schedule"
	"github.com/pastelaria/aluminio-bot/internal/storage/memory"
)

// 2026-08-24 is a Monday, routed to (FARM SEG E TER, column 5).
var monday = time.Date(2026, time.August, 24, 15, 0, 0, 0, time.UTC)

// 2026-08-30 is a Sunday.
var sunday = time.Date(2026, time.August, 30, 15, 0, 0, 0, time.UTC)

type capturedEvent struct {
	topic string
	event any
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{topic, event})
	return nil
}

func newLedger(t *testing.T, store *memory.Store, at time.Time) (*Ledger, *queue.Queue, *capturePublisher) {
	t.Helper()
	q, err := queue.Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	pub := &capturePublisher{}
	l := New(store, q, pub, zerolog.Nop()).
		WithPolicy(retry.Default().WithSleep(func(time.Duration) {})).
		WithClock(func() time.Time { return at })
	return l, q, pub
}

func op(identity string, amount int, kind models.Kind) models.Operation {
	return models.Operation{ID: "op-1", Identity: identity, Amount: amount, Kind: kind, SubmittedAt: monday}
}

func TestApplyDepositExistingRow(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SeedRow(schedule.SectionMonTue, "123", "", "", "", "20")
	l, _, pub := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("123", 50, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 70, out.NewTotal)
	assert.Equal(t, schedule.SectionMonTue, out.Slot.Section)
	assert.Equal(t, 5, out.Slot.Column)

	rows := store.Rows(schedule.SectionMonTue)
	assert.Equal(t, "70", rows[0][4])

	require.Len(t, pub.events, 1)
	assert.Equal(t, AppliedTopic, pub.events[0].topic)
	ev := pub.events[0].event.(AppliedEvent)
	assert.Equal(t, "123", ev.Identity)
	assert.Equal(t, 70, ev.NewTotal)
}

func TestApplyDepositNewRowAppends(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	l, _, _ := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("321", 30, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, out.Status)
	assert.Equal(t, 30, out.NewTotal)

	rows := store.Rows(schedule.SectionMonTue)
	require.Len(t, rows, 1)
	assert.Equal(t, "321", rows[0][0])
	assert.Equal(t, "30", rows[0][4])
	// columns between identity and counter stay blank
	for _, cell := range rows[0][1:4] {
		assert.Equal(t, "", cell)
	}
}

// A member hand-entered with the passport in the second column still matches
// their existing row; the deposit composes instead of appending a duplicate.
func TestApplyDepositMatchesIdentityInSecondColumn(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SeedRow(schedule.SectionMonTue, "", "123", "", "", "20")
	l, _, _ := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("123", 50, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 70, out.NewTotal)

	rows := store.Rows(schedule.SectionMonTue)
	require.Len(t, rows, 1)
	assert.Equal(t, "70", rows[0][4])
}

func TestApplyWithdrawClampsAtZero(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SeedRow(schedule.SectionMonTue, "123", "", "", "", "5")
	l, _, _ := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("123", 20, models.Withdraw))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 0, out.NewTotal)
	assert.Equal(t, "0", store.Rows(schedule.SectionMonTue)[0][4])
}

func TestApplyWithdrawWithoutRegistration(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	l, _, _ := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("999", 10, models.Withdraw))
	require.NoError(t, err)
	assert.Equal(t, StatusUnregistered, out.Status)
	assert.Equal(t, 0, out.NewTotal)
	// no row is created
	assert.Empty(t, store.Rows(schedule.SectionMonTue))
}

func TestApplyDepositsCompose(t *testing.T) {
	split := memory.NewStore(schedule.SectionMonTue)
	lSplit, _, _ := newLedger(t, split, monday)
	_, err := lSplit.Apply(context.Background(), op("42", 10, models.Deposit))
	require.NoError(t, err)
	out, err := lSplit.Apply(context.Background(), op("42", 15, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, 25, out.NewTotal)

	single := memory.NewStore(schedule.SectionMonTue)
	lSingle, _, _ := newLedger(t, single, monday)
	out, err = lSingle.Apply(context.Background(), op("42", 25, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, 25, out.NewTotal)

	assert.Equal(t, single.Rows(schedule.SectionMonTue)[0][4], split.Rows(schedule.SectionMonTue)[0][4])
}

func TestApplyValidation(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	l, q, _ := newLedger(t, store, monday)

	tests := []struct {
		name string
		op   models.Operation
	}{
		{"non-numeric identity", op("12a4", 10, models.Deposit)},
		{"empty identity", op("", 10, models.Deposit)},
		{"zero amount", op("123", 0, models.Deposit)},
		{"amount above ceiling", op("123", 10001, models.Deposit)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := l.Apply(context.Background(), tt.op)
			require.NoError(t, err)
			assert.Equal(t, StatusRejected, out.Status)
			assert.NotEmpty(t, out.Reason)
		})
	}

	// validation failures are never queued
	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, store.Rows(schedule.SectionMonTue))
}

func TestApplyNoFarmDay(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue, schedule.SectionSunday)
	l, q, _ := newLedger(t, store, sunday)

	out, err := l.Apply(context.Background(), op("123", 10, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusNoFarmDay, out.Status)
	assert.Equal(t, schedule.SectionSunday, out.Slot.Section)

	// store untouched, nothing queued
	assert.Empty(t, store.Rows(schedule.SectionSunday))
	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestApplyRetriesTransientFailures(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SeedRow(schedule.SectionMonTue, "123", "", "", "", "10")
	l, _, _ := newLedger(t, store, monday)

	// two failures are absorbed by the per-call retry budget
	store.FailNext(2)
	out, err := l.Apply(context.Background(), op("123", 5, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, 15, out.NewTotal)
}

func TestApplyQueuesWhenRetriesExhaust(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	l, q, pub := newLedger(t, store, monday)

	// more consecutive failures than one call's retry budget
	store.FailNext(10)
	out, err := l.Apply(context.Background(), op("123", 50, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, out.Status)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, pub.events)
}

func TestApplyQueuesWhenDisconnectedAndReconnectFails(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SetConnected(false)
	store.FailNext(1) // the reconnect attempt itself fails
	l, q, _ := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("123", 50, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, out.Status)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestApplyReconnectsAndProceeds(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SetConnected(false)
	l, q, _ := newLedger(t, store, monday)

	out, err := l.Apply(context.Background(), op("123", 50, models.Deposit))
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, out.Status)
	assert.Equal(t, 50, out.NewTotal)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReplayNeverEnqueues(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	l, q, _ := newLedger(t, store, monday)

	store.FailNext(10)
	err := l.Replay(context.Background(), op("123", 50, models.Deposit))
	require.Error(t, err)

	n, qerr := q.Len()
	require.NoError(t, qerr)
	assert.Equal(t, 0, n)
}

func TestReplayAppliesLikeLive(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	store.SeedRow(schedule.SectionMonTue, "99", "", "", "", "30")
	l, _, pub := newLedger(t, store, monday)

	require.NoError(t, l.Replay(context.Background(), op("99", 10, models.Withdraw)))
	assert.Equal(t, "20", store.Rows(schedule.SectionMonTue)[0][4])
	assert.Len(t, pub.events, 1)
}

func TestQueuedOperationSurvivesOutageEndToEnd(t *testing.T) {
	store := memory.NewStore(schedule.SectionMonTue)
	l, q, _ := newLedger(t, store, monday)

	store.FailNext(10)
	out, err := l.Apply(context.Background(), op("321", 30, models.Deposit))
	require.NoError(t, err)
	require.Equal(t, StatusQueued, out.Status)

	// store recovers; the reconciler's drain replays the update
	applied, dropped, err := q.DrainOnce(context.Background(), l.Replay)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, "30", store.Rows(schedule.SectionMonTue)[0][4])
}
