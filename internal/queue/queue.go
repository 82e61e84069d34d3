// Package queue is the durable pending-operations log. Updates that could
// not reach the remote ledger are appended here and replayed by the
// reconciler; nothing is lost to a transient outage short of the attempt
// ceiling.
//
// The backing file is CSV for compatibility with records written by earlier
// deployments of the bot. Two layouts exist and decoding is centralized in
// decodeRecord:
//
//	v2 (current): identity, amount, operation, timestamp, attempts
//	v1 (legacy):  identity, amount, timestamp, attempts   (operation = deposit)
package queue

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"github.com/pastelaria/aluminio-bot/internal/models"
)

const (
	fileName = "pending_updates.csv"

	// MaxAttempts is the replay ceiling: a record that has failed this many
	// times is abandoned on the next drain pass. The loss is surfaced only in
	// the log, which keeps the queue from growing without bound.
	MaxAttempts = 5
)

var header = []string{"passaporte", "quantidade", "operacao", "timestamp", "tentativas"}

// Queue owns its backing file exclusively. Enqueue and DrainOnce serialize
// on one mutex so file mutations never interleave.
type Queue struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
}

func Open(dataDir string, log zerolog.Logger) (*Queue, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("queue: create data dir: %w", err)
	}
	return &Queue{
		path: filepath.Join(dataDir, fileName),
		log:  log.With().Str("component", "queue").Logger(),
	}, nil
}

// Enqueue durably appends op with a fresh attempt counter.
func (q *Queue) Enqueue(op models.Operation) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, statErr := os.Stat(q.path)
	newFile := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if newFile {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("queue: write header: %w", err)
		}
	}
	rec := models.PendingRecord{Operation: op, CreatedAt: op.SubmittedAt}
	if err := w.Write(encodeRecord(rec)); err != nil {
		return fmt.Errorf("queue: write record: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("queue: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("queue: sync: %w", err)
	}

	q.log.Info().
		Str("identity", op.Identity).
		Int("amount", op.Amount).
		Str("kind", string(op.Kind)).
		Msg("operation saved for later replay")
	return nil
}

// ReplayFunc applies one queued operation against the ledger with
// notifications suppressed.
type ReplayFunc func(ctx context.Context, op models.Operation) error

// DrainOnce replays queued records in file order. Records past the attempt
// ceiling are dropped; the first replay failure increments that record's
// attempt counter and stops the pass, so ordering is preserved and a failing
// store is not hammered. The surviving records are rewritten in one atomic
// replace, making the increment durable before any later pass.
func (q *Queue) DrainOnce(ctx context.Context, replay ReplayFunc) (applied, dropped int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	records, err := q.load()
	if err != nil {
		return 0, 0, err
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	q.log.Info().Int("pending", len(records)).Msg("processing pending updates")

	var remaining []models.PendingRecord
	stopped := false
	for i, rec := range records {
		if stopped {
			remaining = append(remaining, records[i:]...)
			break
		}
		if rec.AttemptCount >= MaxAttempts {
			dropped++
			q.log.Warn().
				Str("identity", rec.Operation.Identity).
				Int("amount", rec.Operation.Amount).
				Str("kind", string(rec.Operation.Kind)).
				Int("attempts", rec.AttemptCount).
				Msg("abandoning pending update after attempt ceiling")
			continue
		}
		if replayErr := replay(ctx, rec.Operation); replayErr != nil {
			rec.AttemptCount++
			remaining = append(remaining, rec)
			stopped = true
			q.log.Error().Err(replayErr).
				Str("identity", rec.Operation.Identity).
				Int("attempts", rec.AttemptCount).
				Msg("replay failed, keeping record")
			continue
		}
		applied++
	}

	if err := q.rewrite(remaining); err != nil {
		return applied, dropped, err
	}
	if applied > 0 || dropped > 0 {
		q.log.Info().Int("applied", applied).Int("dropped", dropped).
			Int("remaining", len(remaining)).Msg("drain pass finished")
	}
	return applied, dropped, nil
}

// Len reports the number of pending records.
func (q *Queue) Len() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	records, err := q.load()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (q *Queue) load() ([]models.PendingRecord, error) {
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: open: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var records []models.PendingRecord
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("queue: read: %w", err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == header[0] {
				continue
			}
		}
		rec, ok := decodeRecord(row)
		if !ok {
			q.log.Warn().Strs("row", row).Msg("skipping malformed queue record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// rewrite replaces the backing file with exactly the given records. The
// replace is all-or-nothing: a crash mid-rewrite leaves the previous file
// intact.
func (q *Queue) rewrite(records []models.PendingRecord) error {
	if len(records) == 0 {
		if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("queue: remove: %w", err)
		}
		return nil
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("queue: encode header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(encodeRecord(rec)); err != nil {
			return fmt.Errorf("queue: encode record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	if err := atomic.WriteFile(q.path, &buf); err != nil {
		return fmt.Errorf("queue: rewrite: %w", err)
	}
	return nil
}

func encodeRecord(rec models.PendingRecord) []string {
	return []string{
		rec.Operation.Identity,
		strconv.Itoa(rec.Operation.Amount),
		string(rec.Operation.Kind),
		rec.CreatedAt.Format(time.RFC3339Nano),
		strconv.Itoa(rec.AttemptCount),
	}
}

// decodeRecord understands both record layouts; see the package comment.
func decodeRecord(row []string) (models.PendingRecord, bool) {
	var identity, amountText, kindText, tsText, attemptsText string
	switch {
	case len(row) >= 5:
		identity, amountText, kindText, tsText, attemptsText = row[0], row[1], row[2], row[3], row[4]
	case len(row) == 4:
		identity, amountText, tsText, attemptsText = row[0], row[1], row[2], row[3]
	default:
		return models.PendingRecord{}, false
	}

	amount, err := strconv.Atoi(amountText)
	if err != nil {
		return models.PendingRecord{}, false
	}
	attempts, err := strconv.Atoi(attemptsText)
	if err != nil {
		return models.PendingRecord{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, tsText)
	if err != nil {
		// legacy writers used a naive local timestamp
		ts, _ = time.Parse("2006-01-02T15:04:05.999999", tsText)
	}

	return models.PendingRecord{
		Operation: models.Operation{
			Identity:    identity,
			Amount:      amount,
			Kind:        models.ParseKind(kindText),
			SubmittedAt: ts,
		},
		AttemptCount: attempts,
		CreatedAt:    ts,
	}, true
}
