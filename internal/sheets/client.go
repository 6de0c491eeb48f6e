// Package sheets adapts the shared Google Sheets spreadsheet as the slot
// grid and the append-only request log. The slots worksheet holds one date
// label in column A per row and slot cells in the following columns; row 1
// is a header. The audit worksheet receives one fixed-order row per
// completed request.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/perioplabs/periopbot/internal/dialog"
	"github.com/perioplabs/periopbot/internal/observability/metrics"
	"github.com/perioplabs/periopbot/pkg/logging"
)

const valueInputUserEntered = "USER_ENTERED"

// Config controls how the client reaches the spreadsheet.
type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	SlotsWorksheet  string
	AuditWorksheet  string
	// SlotColumns is K, the number of slot cells per schedule row.
	SlotColumns int
	Logger      *logging.Logger
	Metrics     *metrics.BotMetrics
}

// Client reads and writes the spreadsheet. It implements dialog.SlotSource
// and dialog.AuditLog.
type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	slotsSheet    string
	auditSheet    string
	slotColumns   int
	logger        *logging.Logger
	metrics       *metrics.BotMetrics
}

// New authenticates with the service-account JSON and builds a client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.CredentialsJSON) == "" {
		return nil, errors.New("sheets: credentials JSON is required")
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("sheets: build service: %w", err)
	}
	return NewWithService(svc, cfg)
}

// NewWithService wraps an already-built Sheets service. Tests point the
// service at an httptest server.
func NewWithService(svc *sheets.Service, cfg Config) (*Client, error) {
	if svc == nil {
		return nil, errors.New("sheets: service cannot be nil")
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("sheets: spreadsheet id is required")
	}
	slotsSheet := cfg.SlotsWorksheet
	if slotsSheet == "" {
		slotsSheet = "AGENDA"
	}
	auditSheet := cfg.AuditWorksheet
	if auditSheet == "" {
		auditSheet = "SOLICITACOES"
	}
	slotColumns := cfg.SlotColumns
	if slotColumns <= 0 {
		slotColumns = 6
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		slotsSheet:    slotsSheet,
		auditSheet:    auditSheet,
		slotColumns:   slotColumns,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// ListOpenSlots scans the grid row by row, skipping the header row and rows
// without a date label, and collects up to max empty slot cells in row-major
// order. Latency stays bounded by the cap, not the grid size.
func (c *Client) ListOpenSlots(ctx context.Context, max int) (slots []dialog.Slot, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveSheetsCall("list_open_slots", time.Since(start).Seconds(), err) }()

	if max <= 0 {
		return nil, nil
	}
	readRange := fmt.Sprintf("%s!A:%s", c.slotsSheet, columnLetter(c.slotColumns))
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: read slot grid: %w", err)
	}

	for rowIdx, row := range resp.Values {
		if rowIdx == 0 {
			continue // header
		}
		date := cellString(row, 0)
		if date == "" {
			continue
		}
		for col := 1; col <= c.slotColumns; col++ {
			if cellString(row, col) != "" {
				continue
			}
			slots = append(slots, dialog.Slot{
				Row:   rowIdx,
				Col:   col,
				Label: fmt.Sprintf("%s — horário %d", date, col),
			})
			if len(slots) >= max {
				return slots, nil
			}
		}
	}
	return slots, nil
}

// TryBook re-reads the target cell and writes text only when it is still
// empty. Check-then-write with no external locking; exclusivity rests on
// the store serializing single-cell writes.
func (c *Client) TryBook(ctx context.Context, row, col int, text string) (booked bool, err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveSheetsCall("try_book", time.Since(start).Seconds(), err) }()

	cellRange := fmt.Sprintf("%s!%s%d", c.slotsSheet, columnLetter(col), row+1)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, cellRange).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("sheets: read slot cell: %w", err)
	}
	if len(resp.Values) > 0 && cellString(resp.Values[0], 0) != "" {
		return false, nil
	}

	body := &sheets.ValueRange{Values: [][]interface{}{{text}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, cellRange, body).
		ValueInputOption(valueInputUserEntered).
		Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("sheets: write slot cell: %w", err)
	}
	c.logger.Info("slot booked", "range", cellRange)
	return true, nil
}

// Append adds one audit row in the fixed 13-column order.
func (c *Client) Append(ctx context.Context, rec dialog.AuditRecord) (err error) {
	start := time.Now()
	defer func() { c.metrics.ObserveSheetsCall("append_record", time.Since(start).Seconds(), err) }()

	body := &sheets.ValueRange{Values: [][]interface{}{{
		rec.Timestamp,
		rec.Path,
		rec.Eligible,
		rec.Criterion,
		rec.PatientName,
		rec.RecordNumber,
		rec.Surgeon,
		rec.Surgery,
		rec.ExpectedDate,
		rec.Notes,
		rec.SlotLabel,
		rec.UserID,
		rec.Username,
	}}}
	appendRange := fmt.Sprintf("%s!A:M", c.auditSheet)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, appendRange, body).
		ValueInputOption(valueInputUserEntered).
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: append audit row: %w", err)
	}
	return nil
}

var (
	_ dialog.SlotSource = (*Client)(nil)
	_ dialog.AuditLog   = (*Client)(nil)
)

// columnLetter converts a zero-based column index to its A1 letter(s).
func columnLetter(col int) string {
	letters := ""
	for col >= 0 {
		letters = string(rune('A'+col%26)) + letters
		col = col/26 - 1
	}
	return letters
}

func cellString(row []interface{}, idx int) string {
	if idx >= len(row) {
		return ""
	}
	s, ok := row[idx].(string)
	if !ok {
		s = fmt.Sprint(row[idx])
	}
	return strings.TrimSpace(s)
}
