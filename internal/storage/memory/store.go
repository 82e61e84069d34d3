// Package memory holds an in-memory SheetStore used by tests. It models each
// section as a growable grid of strings and can be told to fail the next N
// calls, which is how the retry and queueing paths are exercised.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/models"
)

type Store struct {
	mu        sync.Mutex
	sections  map[string][][]string
	failNext  int  // calls left to fail with ErrUnavailable
	connected bool // Connected()/Reconnect() state
}

func NewStore(sections ...string) *Store {
	s := &Store{
		sections:  make(map[string][][]string),
		connected: true,
	}
	for _, name := range sections {
		s.sections[name] = [][]string{}
	}
	return s
}

// FailNext makes the next n grid operations return ErrUnavailable.
func (s *Store) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// SetConnected toggles the simulated session state.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// SeedRow appends a raw row to a section, creating the section if needed.
func (s *Store) SeedRow(section string, cells ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sections[section] = append(s.sections[section], cells)
}

// Rows returns a deep copy of a section's grid.
func (s *Store) Rows(section string) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([][]string, len(s.sections[section]))
	for i, r := range s.sections[section] {
		rows[i] = append([]string(nil), r...)
	}
	return rows
}

func (s *Store) checkFail() error {
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("injected failure: %w", interfaces.ErrUnavailable)
	}
	if !s.connected {
		return fmt.Errorf("no session: %w", interfaces.ErrUnavailable)
	}
	return nil
}

func (s *Store) FindRow(_ context.Context, section, identity string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return 0, err
	}
	// identity may live in the first or the second column
	for i, row := range s.sections[section] {
		for c := 0; c < 2 && c < len(row); c++ {
			if row[c] == identity {
				return i + 1, nil
			}
		}
	}
	return 0, interfaces.ErrRowNotFound
}

func (s *Store) ReadCell(_ context.Context, section string, row, col int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return 0, err
	}
	text := s.cell(section, row, col)
	if text == "" {
		return 0, nil
	}
	return strconv.Atoi(text)
}

func (s *Store) WriteCell(_ context.Context, section string, row, col, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	s.setCell(section, row, col, strconv.Itoa(value))
	return nil
}

func (s *Store) AppendRow(_ context.Context, section string, cells []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	s.sections[section] = append(s.sections[section], append([]string(nil), cells...))
	return nil
}

func (s *Store) BatchWrite(_ context.Context, section string, updates []models.CellUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return err
	}
	for _, u := range updates {
		s.setCell(section, u.Row, u.Col, strconv.Itoa(u.Value))
	}
	return nil
}

func (s *Store) ColumnValues(_ context.Context, section string, col int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFail(); err != nil {
		return nil, err
	}
	var values []string
	for _, row := range s.sections[section] {
		if col-1 < len(row) {
			values = append(values, row[col-1])
		} else {
			values = append(values, "")
		}
	}
	return values, nil
}

func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Store) Reconnect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return fmt.Errorf("injected failure: %w", interfaces.ErrUnavailable)
	}
	s.connected = true
	return nil
}

func (s *Store) cell(section string, row, col int) string {
	grid := s.sections[section]
	if row-1 >= len(grid) || col-1 >= len(grid[row-1]) {
		return ""
	}
	return grid[row-1][col-1]
}

func (s *Store) setCell(section string, row, col int, value string) {
	grid := s.sections[section]
	for len(grid) < row {
		grid = append(grid, []string{})
	}
	for len(grid[row-1]) < col {
		grid[row-1] = append(grid[row-1], "")
	}
	grid[row-1][col-1] = value
	s.sections[section] = grid
}

// Compile-time check: Store implements the SheetStore interface.
var _ interfaces.SheetStore = (*Store)(nil)
