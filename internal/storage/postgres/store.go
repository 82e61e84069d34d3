// Package postgres implements the SheetStore interface over Postgres for
// self-hosted deployments that do not want a Google spreadsheet. The grid is
// modeled one cell per row:
//
//	CREATE TABLE sheet_cells (
//	    section TEXT    NOT NULL,
//	    row_num INTEGER NOT NULL,
//	    col_num INTEGER NOT NULL,
//	    value   TEXT    NOT NULL,
//	    PRIMARY KEY (section, row_num, col_num)
//	);
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/models"
)

type Store struct {
	mu  sync.RWMutex
	db  *sql.DB
	dsn string
}

func Connect(dsn string) (*Store, error) {
	s := &Store{dsn: dsn}
	if err := s.Reconnect(context.Background()); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db != nil
}

func (s *Store) Reconnect(ctx context.Context) error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("postgres: ping: %w", classify(err))
	}
	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

func (s *Store) handle() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("postgres: no session: %w", interfaces.ErrUnavailable)
	}
	return s.db, nil
}

func (s *Store) FindRow(ctx context.Context, section, identity string) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	// identity may live in the first or the second column
	const query = `SELECT row_num FROM sheet_cells
		WHERE section = $1 AND col_num IN (1, 2) AND value = $2
		ORDER BY row_num LIMIT 1`

	var row int
	err = db.QueryRowContext(ctx, query, section, identity).Scan(&row)
	if err == sql.ErrNoRows {
		return 0, interfaces.ErrRowNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: find row: %w", classify(err))
	}
	return row, nil
}

func (s *Store) ReadCell(ctx context.Context, section string, row, col int) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	const query = `SELECT value FROM sheet_cells
		WHERE section = $1 AND row_num = $2 AND col_num = $3`

	var value string
	err = db.QueryRowContext(ctx, query, section, row, col).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: read cell: %w", classify(err))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("postgres: non-numeric cell %q: %w", value, err)
	}
	return n, nil
}

const upsertQuery = `INSERT INTO sheet_cells (section, row_num, col_num, value)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (section, row_num, col_num) DO UPDATE SET value = EXCLUDED.value`

func (s *Store) WriteCell(ctx context.Context, section string, row, col, value int) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, upsertQuery, section, row, col, strconv.Itoa(value))
	if err != nil {
		return fmt.Errorf("postgres: write cell: %w", classify(err))
	}
	return nil
}

func (s *Store) AppendRow(ctx context.Context, section string, cells []string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", classify(err))
	}
	defer tx.Rollback()

	var next int
	const nextRowQuery = `SELECT COALESCE(MAX(row_num), 0) + 1 FROM sheet_cells WHERE section = $1`
	if err := tx.QueryRowContext(ctx, nextRowQuery, section).Scan(&next); err != nil {
		return fmt.Errorf("postgres: next row: %w", classify(err))
	}
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, upsertQuery, section, next, i+1, cell); err != nil {
			return fmt.Errorf("postgres: append cell: %w", classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", classify(err))
	}
	return nil
}

func (s *Store) BatchWrite(ctx context.Context, section string, updates []models.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	db, err := s.handle()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", classify(err))
	}
	defer tx.Rollback()

	for _, u := range updates {
		if _, err := tx.ExecContext(ctx, upsertQuery, section, u.Row, u.Col, strconv.Itoa(u.Value)); err != nil {
			return fmt.Errorf("postgres: batch write: %w", classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit: %w", classify(err))
	}
	return nil
}

func (s *Store) ColumnValues(ctx context.Context, section string, col int) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}
	const query = `SELECT row_num, value FROM sheet_cells
		WHERE section = $1 AND col_num = $2 ORDER BY row_num`

	rows, err := db.QueryContext(ctx, query, section, col)
	if err != nil {
		return nil, fmt.Errorf("postgres: column values: %w", classify(err))
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var row int
		var value string
		if err := rows.Scan(&row, &value); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", classify(err))
		}
		// pad skipped rows so indexes stay 1-based and positional
		for len(values) < row-1 {
			values = append(values, "")
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: column values: %w", classify(err))
	}
	return values, nil
}

// classify marks connection-level failures as transient. pq class 08 is
// "connection exception"; driver-level ErrBadConn shows up after a dropped
// session.
func classify(err error) error {
	if errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", interfaces.ErrUnavailable, err)
	}
	var perr *pq.Error
	if errors.As(err, &perr) && perr.Code.Class() == "08" {
		return fmt.Errorf("%w: %w", interfaces.ErrUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", interfaces.ErrUnavailable, err)
	}
	return err
}

// Compile-time check: Store implements the SheetStore interface.
var _ interfaces.SheetStore = (*Store)(nil)
