package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-08-24 is a Monday.
func civil(day int, hour int) time.Time {
	loc, _ := time.LoadLocation("America/Sao_Paulo")
	return time.Date(2026, time.August, day, hour, 0, 0, 0, loc)
}

func TestSlotForWeek(t *testing.T) {
	tests := []struct {
		day     int
		section string
		column  int
	}{
		{24, SectionMonTue, ColumnFirstDay},
		{25, SectionMonTue, ColumnSecondDay},
		{26, SectionWedThu, ColumnFirstDay},
		{27, SectionWedThu, ColumnSecondDay},
		{28, SectionFriSat, ColumnFirstDay},
		{29, SectionFriSat, ColumnSecondDay},
	}
	for _, tt := range tests {
		slot, err := SlotFor(civil(tt.day, 15))
		require.NoError(t, err)
		assert.Equal(t, tt.section, slot.Section)
		assert.Equal(t, tt.column, slot.Column)
	}
}

// Pin the worksheet titles to the live spreadsheet's tabs, including the
// misspelled Wednesday/Thursday one. Normalizing "QUR" to "QUA" reads
// better but routes every mid-week update to a tab that does not exist.
func TestSectionNamesMatchSpreadsheetTabs(t *testing.T) {
	assert.Equal(t, "FARM SEG E TER", SectionMonTue)
	assert.Equal(t, "FARM QUR E QUI", SectionWedThu)
	assert.Equal(t, "FARM SEX E SÁB", SectionFriSat)
	assert.Equal(t, "FARM DOM", SectionSunday)
	assert.Equal(t, []string{SectionMonTue, SectionWedThu, SectionFriSat}, FarmSections)
}

func TestSlotForSunday(t *testing.T) {
	slot, err := SlotFor(civil(30, 15))
	assert.ErrorIs(t, err, ErrNoFarmDay)
	assert.Equal(t, SectionSunday, slot.Section)
	assert.Equal(t, ColumnFirstDay, slot.Column)
}

// The routing follows São Paulo civil time, not the wall clock of the host.
// 2026-08-25 01:00 UTC is still Monday evening in São Paulo.
func TestSlotForUsesCivilTimezone(t *testing.T) {
	utc := time.Date(2026, time.August, 25, 1, 0, 0, 0, time.UTC)
	slot, err := SlotFor(utc)
	require.NoError(t, err)
	assert.Equal(t, SectionMonTue, slot.Section)
	assert.Equal(t, ColumnFirstDay, slot.Column)
}
