// Package sheets implements the SheetStore interface against a Google
// Sheets spreadsheet using a pre-provisioned service-account credential.
//
// The live *sheets.Service is the single connection handle of the process:
// it is owned here, read under a RWMutex, and replaced wholesale by
// Reconnect. Callers holding a stale handle see a transient error and retry
// or queue.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
	"github.com/pastelaria/aluminio-bot/internal/models"
)

type Store struct {
	mu            sync.RWMutex
	svc           *sheetsapi.Service
	credsJSON     []byte
	spreadsheetID string
}

// Connect builds a store and establishes the first session. A connect
// failure still returns a usable store; Reconnect is retried by the
// reconciler until the session comes up.
func Connect(ctx context.Context, credsJSON []byte, spreadsheetID string) (*Store, error) {
	s := &Store{
		credsJSON:     credsJSON,
		spreadsheetID: spreadsheetID,
	}
	if err := s.Reconnect(ctx); err != nil {
		return s, err
	}
	return s, nil
}

func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.svc != nil
}

// Reconnect authorizes a fresh session and swaps it in atomically.
func (s *Store) Reconnect(ctx context.Context) error {
	conf, err := google.JWTConfigFromJSON(s.credsJSON, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return fmt.Errorf("sheets: parse credentials: %w", err)
	}
	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return fmt.Errorf("sheets: new service: %w", classify(err))
	}
	s.mu.Lock()
	s.svc = svc
	s.mu.Unlock()
	return nil
}

func (s *Store) service() (*sheetsapi.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.svc == nil {
		return nil, fmt.Errorf("sheets: no session: %w", interfaces.ErrUnavailable)
	}
	return s.svc, nil
}

// FindRow matches the identity in either of the first two columns. Rows
// appended by the bot carry the passport in column A, but some members were
// hand-entered with it in column B and must still resolve to their row.
func (s *Store) FindRow(ctx context.Context, section, identity string) (int, error) {
	svc, err := s.service()
	if err != nil {
		return 0, err
	}
	ref := sectionRange(section, "A:B")
	resp, err := svc.Spreadsheets.Values.Get(s.spreadsheetID, ref).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: read %s: %w", ref, classify(err))
	}
	for i, row := range resp.Values {
		for _, cell := range row {
			if strings.TrimSpace(fmt.Sprint(cell)) == identity {
				return i + 1, nil
			}
		}
	}
	return 0, interfaces.ErrRowNotFound
}

func (s *Store) ReadCell(ctx context.Context, section string, row, col int) (int, error) {
	svc, err := s.service()
	if err != nil {
		return 0, err
	}
	ref := cellRange(section, row, col)
	resp, err := svc.Spreadsheets.Values.Get(s.spreadsheetID, ref).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: read %s: %w", ref, classify(err))
	}
	if len(resp.Values) == 0 || len(resp.Values[0]) == 0 {
		return 0, nil
	}
	return parseCellValue(fmt.Sprint(resp.Values[0][0]))
}

func (s *Store) WriteCell(ctx context.Context, section string, row, col, value int) error {
	svc, err := s.service()
	if err != nil {
		return err
	}
	ref := cellRange(section, row, col)
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{{value}}}
	_, err = svc.Spreadsheets.Values.Update(s.spreadsheetID, ref, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: write %s: %w", ref, classify(err))
	}
	return nil
}

func (s *Store) AppendRow(ctx context.Context, section string, cells []string) error {
	svc, err := s.service()
	if err != nil {
		return err
	}
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	vr := &sheetsapi.ValueRange{Values: [][]interface{}{row}}
	_, err = svc.Spreadsheets.Values.Append(s.spreadsheetID, sectionRange(section, "A1"), vr).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: append to %s: %w", section, classify(err))
	}
	return nil
}

func (s *Store) BatchWrite(ctx context.Context, section string, updates []models.CellUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	svc, err := s.service()
	if err != nil {
		return err
	}
	data := make([]*sheetsapi.ValueRange, len(updates))
	for i, u := range updates {
		data[i] = &sheetsapi.ValueRange{
			Range:  cellRange(section, u.Row, u.Col),
			Values: [][]interface{}{{u.Value}},
		}
	}
	req := &sheetsapi.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}
	_, err = svc.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: batch write %s: %w", section, classify(err))
	}
	return nil
}

func (s *Store) ColumnValues(ctx context.Context, section string, col int) ([]string, error) {
	svc, err := s.service()
	if err != nil {
		return nil, err
	}
	letter := columnLetter(col)
	ref := sectionRange(section, letter+":"+letter)
	resp, err := svc.Spreadsheets.Values.Get(s.spreadsheetID, ref).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read column %s: %w", ref, classify(err))
	}
	values := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			values = append(values, "")
			continue
		}
		values = append(values, fmt.Sprint(row[0]))
	}
	return values, nil
}

// classify wraps transient API failures with ErrUnavailable: rate limits,
// server-side errors and transport-level failures. Anything else (bad range,
// permission denied) is permanent.
func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == 429 || gerr.Code >= 500 {
			return fmt.Errorf("%w: %w", interfaces.ErrUnavailable, err)
		}
		return err
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return fmt.Errorf("%w: %w", interfaces.ErrUnavailable, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", interfaces.ErrUnavailable, err)
	}
	return err
}

// parseCellValue reads a counter cell. The store returns formatted values,
// so "1500", "1500.00" and "1.500,00"-style texts all need to land on the
// same integer; decimal does the forgiving part.
func parseCellValue(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	if strings.Contains(text, ",") && strings.Contains(text, ".") {
		// pt-BR formatting: dot groups thousands, comma is the decimal mark
		text = strings.ReplaceAll(text, ".", "")
		text = strings.ReplaceAll(text, ",", ".")
	} else {
		text = strings.ReplaceAll(text, ",", "")
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, fmt.Errorf("sheets: non-numeric cell %q: %w", text, err)
	}
	return int(d.IntPart()), nil
}

func sectionRange(section, ref string) string {
	return fmt.Sprintf("'%s'!%s", section, ref)
}

func cellRange(section string, row, col int) string {
	return sectionRange(section, fmt.Sprintf("%s%d", columnLetter(col), row))
}

// columnLetter converts a 1-based column index to its A1 letters.
func columnLetter(col int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return string(letters)
}

// Compile-time check: Store implements the SheetStore interface.
var _ interfaces.SheetStore = (*Store)(nil)
