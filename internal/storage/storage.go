// Package storage defines the spreadsheet-shaped tables the application
// persists into. Every table is addressed by spreadsheet id and sheet title,
// rows are 1-based and row 1 holds the header.
package storage

import (
	"context"
	"fmt"
)

// TableRef names one sheet inside one spreadsheet.
type TableRef struct {
	SpreadsheetID string
	Sheet         string
}

func (t TableRef) String() string {
	return fmt.Sprintf("%s/%s", t.SpreadsheetID, t.Sheet)
}

// CellWrite sets a single cell. Row is 1-based, Column is 0-based.
type CellWrite struct {
	Row    int
	Column int
	Value  any
}

// SpreadsheetInfo describes a spreadsheet visible to the caller.
type SpreadsheetInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CreatedTime string `json:"createdTime,omitempty"`
}

// Backend is a spreadsheet service acting with one set of credentials.
type Backend interface {
	// ReadRows returns every row of the table, header included, limited to the
	// first width columns. Trailing empty cells of a row may be omitted.
	ReadRows(ctx context.Context, table TableRef, width int) ([][]string, error)
	// ReadRow returns a single row limited to width columns.
	ReadRow(ctx context.Context, table TableRef, row, width int) ([]string, error)
	// WriteCells applies all writes as one batch. Cells not named are untouched.
	WriteCells(ctx context.Context, table TableRef, writes []CellWrite) error
	// AppendRow adds values as a new row after the last non-empty row.
	AppendRow(ctx context.Context, table TableRef, values []any) error
	// EnsureSheet creates the sheet with the given header row when it does not
	// exist yet and reports whether it did so.
	EnsureSheet(ctx context.Context, table TableRef, header []string) (bool, error)
	// ListSpreadsheets lists the spreadsheets the credentials can see.
	ListSpreadsheets(ctx context.Context) ([]SpreadsheetInfo, error)
	// CreateSpreadsheet creates a spreadsheet with one sheet holding header.
	CreateSpreadsheet(ctx context.Context, title, sheet string, header []string) (SpreadsheetInfo, error)
}

// TokenBackends hands out backends acting on behalf of an end user, identified
// by their OAuth access token.
type TokenBackends interface {
	ForToken(ctx context.Context, accessToken string) (Backend, error)
}

// Static serves the same backend for every token. Offline backends use it.
type Static struct {
	Backend Backend
}

func (s Static) ForToken(context.Context, string) (Backend, error) {
	return s.Backend, nil
}

// Cell returns row[i] or "" when the row is too short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
