// Package schedule maps civil dates to ledger sections and columns.
//
// The spreadsheet is partitioned into one worksheet per weekday pair, each
// with two counter columns. The schedule is anchored to America/Sao_Paulo so
// the routing does not drift with the host clock's timezone.
package schedule

import (
	"errors"
	"time"
)

// Farm worksheet names, externally owned. The tab titles must match the
// spreadsheet byte for byte, misspellings included ("QUR" is what the
// Wednesday/Thursday tab is actually called).
const (
	SectionMonTue = "FARM SEG E TER"
	SectionWedThu = "FARM QUR E QUI"
	SectionFriSat = "FARM SEX E SÁB"
	SectionSunday = "FARM DOM"
)

// Counter columns inside each farm section (1-based).
const (
	ColumnFirstDay  = 5
	ColumnSecondDay = 14
)

// FarmSections are the sections that accumulate counters during the week,
// in reset order. Sunday's section holds no counters and is excluded.
var FarmSections = []string{SectionMonTue, SectionWedThu, SectionFriSat}

// ErrNoFarmDay marks the day on which contributions are not counted. SlotFor
// still returns the Sunday slot next to it so callers can name the section
// in messages, but they must not write to it.
var ErrNoFarmDay = errors.New("farm is not counted today")

// Slot is the (section, column) a given date's updates land in.
type Slot struct {
	Section string
	Column  int
}

var saoPaulo *time.Location

func init() {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		// tzdata missing on the host; the container image ships it.
		panic("schedule: " + err.Error())
	}
	saoPaulo = loc
}

// Now returns the current civil time in America/Sao_Paulo.
func Now() time.Time {
	return time.Now().In(saoPaulo)
}

// SlotFor routes a point in time to its ledger slot. The switch is total
// over all seven weekdays; Sunday returns its slot together with
// ErrNoFarmDay.
func SlotFor(t time.Time) (Slot, error) {
	switch t.In(saoPaulo).Weekday() {
	case time.Monday:
		return Slot{Section: SectionMonTue, Column: ColumnFirstDay}, nil
	case time.Tuesday:
		return Slot{Section: SectionMonTue, Column: ColumnSecondDay}, nil
	case time.Wednesday:
		return Slot{Section: SectionWedThu, Column: ColumnFirstDay}, nil
	case time.Thursday:
		return Slot{Section: SectionWedThu, Column: ColumnSecondDay}, nil
	case time.Friday:
		return Slot{Section: SectionFriSat, Column: ColumnFirstDay}, nil
	case time.Saturday:
		return Slot{Section: SectionFriSat, Column: ColumnSecondDay}, nil
	case time.Sunday:
		return Slot{Section: SectionSunday, Column: ColumnFirstDay}, ErrNoFarmDay
	}
	// unreachable: Weekday is one of the seven cases above
	return Slot{}, ErrNoFarmDay
}
