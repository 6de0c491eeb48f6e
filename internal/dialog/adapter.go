// Package dialog implements the conversational engine that walks a user
// through the perioperative-geriatrics eligibility questionnaire and the
// surgical scheduling form, then books an open slot in the shared schedule
// grid and appends an audit row to the request log.
package dialog

import "context"

// Slot is one bookable cell of the schedule grid as read at listing time.
// Row and Col are zero-based grid coordinates; Label is the human-readable
// description shown on the slot button and written to the audit log.
type Slot struct {
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Label string `json:"label"`
}

// AuditRecord is one append-only row of the request log. Field order here
// matches the fixed column order of the log worksheet.
type AuditRecord struct {
	Timestamp    string
	Path         string
	Eligible     string
	Criterion    string
	PatientName  string
	RecordNumber string
	Surgeon      string
	Surgery      string
	ExpectedDate string
	Notes        string
	SlotLabel    string
	UserID       string
	Username     string
}

// SlotSource lists open slots and claims them. Implementations back onto a
// shared store (the Sheets schedule grid in production); TryBook is a
// check-then-write against a single cell and is only as atomic as the store's
// single-cell operations.
type SlotSource interface {
	// ListOpenSlots returns up to max open slots in row-major scan order.
	ListOpenSlots(ctx context.Context, max int) ([]Slot, error)

	// TryBook re-reads the target cell and writes text into it only when it
	// is still empty. Returns false without writing when the cell was taken.
	TryBook(ctx context.Context, row, col int, text string) (bool, error)
}

// AuditLog appends request rows. Appends are best-effort telemetry: a failed
// append never rolls back a completed booking.
type AuditLog interface {
	Append(ctx context.Context, rec AuditRecord) error
}

// SessionStore persists per-user dialogue sessions.
type SessionStore interface {
	// Load returns the stored session for the user, or nil when none exists.
	Load(ctx context.Context, userID int64) (*Session, error)

	// Save persists the session, overwriting any previous state.
	Save(ctx context.Context, s *Session) error
}
