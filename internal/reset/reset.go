// Package reset implements the weekly zeroing of all farm counters and the
// quota baseline on the control panel sheet.
package reset

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/models"
	"github.com/pastelaria/aluminio-bot/internal/schedule"
)

const (
	// identityColumn is where the sheet layout keeps member ids; row 1 is a
	// header and is skipped.
	identityColumn = 2

	// quotaColumn on the control panel is reset to QuotaBaseline so members
	// start the week owing their quota.
	quotaColumn   = 10
	QuotaBaseline = -1000

	// DefaultHour is the earliest Sunday hour (São Paulo time) the reset may
	// run.
	DefaultHour = 12
)

// Coordinator performs the weekly reset. It is idempotent: zeroing a zeroed
// counter and re-baselining an already-baselined quota change nothing, so
// both the startup check and the periodic loop may trigger it on the same
// Sunday.
type Coordinator struct {
	store interfaces.SheetStore
	panel string // control panel sheet name
	hour  int
	log   zerolog.Logger
}

func NewCoordinator(store interfaces.SheetStore, panel string, hour int, log zerolog.Logger) *Coordinator {
	if hour <= 0 {
		hour = DefaultHour
	}
	return &Coordinator{
		store: store,
		panel: panel,
		hour:  hour,
		log:   log.With().Str("component", "reset").Logger(),
	}
}

// Due reports whether the weekly reset condition holds at t.
func (c *Coordinator) Due(t time.Time) bool {
	return t.Weekday() == time.Sunday && t.Hour() >= c.hour
}

// ResetWeekly zeroes columns 5 and 14 of every registered row in each farm
// section (one batched write per section) and sets the control panel quota
// column to the baseline. A failing phase is logged and does not block the
// others; the aggregate error is returned.
func (c *Coordinator) ResetWeekly(ctx context.Context) error {
	c.log.Info().Msg("starting weekly reset")

	var errs []error
	for _, section := range schedule.FarmSections {
		if err := c.resetSection(ctx, section); err != nil {
			c.log.Error().Err(err).Str("section", section).Msg("section reset failed")
			errs = append(errs, fmt.Errorf("section %s: %w", section, err))
			continue
		}
		c.log.Info().Str("section", section).Msg("counters zeroed")
	}

	if err := c.resetPanel(ctx); err != nil {
		c.log.Error().Err(err).Str("panel", c.panel).Msg("quota reset failed")
		errs = append(errs, fmt.Errorf("panel %s: %w", c.panel, err))
	} else {
		c.log.Info().Str("panel", c.panel).Int("baseline", QuotaBaseline).Msg("quotas re-baselined")
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.log.Info().Msg("weekly reset finished")
	return nil
}

func (c *Coordinator) resetSection(ctx context.Context, section string) error {
	rows, err := c.registeredRows(ctx, section)
	if err != nil {
		return err
	}
	var updates []models.CellUpdate
	for _, row := range rows {
		updates = append(updates,
			models.CellUpdate{Row: row, Col: schedule.ColumnFirstDay, Value: 0},
			models.CellUpdate{Row: row, Col: schedule.ColumnSecondDay, Value: 0},
		)
	}
	if len(updates) == 0 {
		return nil
	}
	return c.store.BatchWrite(ctx, section, updates)
}

func (c *Coordinator) resetPanel(ctx context.Context) error {
	rows, err := c.registeredRows(ctx, c.panel)
	if err != nil {
		return err
	}
	var updates []models.CellUpdate
	for _, row := range rows {
		updates = append(updates, models.CellUpdate{Row: row, Col: quotaColumn, Value: QuotaBaseline})
	}
	if len(updates) == 0 {
		return nil
	}
	return c.store.BatchWrite(ctx, c.panel, updates)
}

// registeredRows returns the 1-based rows whose identity cell is non-blank,
// header excluded.
func (c *Coordinator) registeredRows(ctx context.Context, section string) ([]int, error) {
	ids, err := c.store.ColumnValues(ctx, section, identityColumn)
	if err != nil {
		return nil, err
	}
	var rows []int
	for i, id := range ids {
		if i == 0 {
			continue // header
		}
		if strings.TrimSpace(id) != "" {
			rows = append(rows, i+1)
		}
	}
	return rows, nil
}
