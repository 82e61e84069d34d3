package interfaces

import (
	"context"
	"errors"

	"github.com/pastelaria/aluminio-bot/internal/models"
)

var (
	// ErrRowNotFound is returned by FindRow when the identity has no row in
	// the section. It is not a transient condition and is never retried.
	ErrRowNotFound = errors.New("row not found")

	// ErrUnavailable marks transient store-level failures (API errors, rate
	// limits, lost connections). Implementations wrap it so callers can
	// decide between retrying and queueing.
	ErrUnavailable = errors.New("store unavailable")
)

// IsTransient reports whether an error from a SheetStore call may succeed on
// a later attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// SheetStore is the remote counter store, addressed by worksheet section.
// Rows and columns are 1-based.
type SheetStore interface {
	// FindRow linearly searches the identity column of section for identity
	// and returns its row, or ErrRowNotFound.
	FindRow(ctx context.Context, section, identity string) (int, error)

	// ReadCell returns the integer value of one cell; blank cells read as 0.
	ReadCell(ctx context.Context, section string, row, col int) (int, error)

	// WriteCell overwrites one cell with value.
	WriteCell(ctx context.Context, section string, row, col, value int) error

	// AppendRow adds a new row with the given cell texts after the last
	// populated row of section.
	AppendRow(ctx context.Context, section string, cells []string) error

	// BatchWrite applies all updates to section in a single remote call.
	BatchWrite(ctx context.Context, section string, updates []models.CellUpdate) error

	// ColumnValues returns the raw text of every populated cell in col, in
	// row order starting at row 1.
	ColumnValues(ctx context.Context, section string, col int) ([]string, error)

	// Connected reports whether a live session to the store exists.
	Connected() bool

	// Reconnect replaces the session wholesale. In-flight calls holding the
	// old session may fail and are expected to retry or queue.
	Reconnect(ctx context.Context) error
}
