// Package memtable keeps spreadsheets in process memory. It backs the
// "memory" demo mode and the tests of the packages built on storage.
package memtable

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"sheetboard/internal/storage"
)

type spreadsheet struct {
	info   storage.SpreadsheetInfo
	sheets map[string][][]string
}

// Store is a concurrency-safe in-memory storage.Backend.
type Store struct {
	mu     sync.Mutex
	docs   map[string]*spreadsheet
	order  []string
	writes int
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string]*spreadsheet)}
}

var _ storage.Backend = (*Store)(nil)

// Seed replaces the content of a sheet, creating the spreadsheet if needed.
func (s *Store) Seed(table storage.TableRef, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docLocked(table.SpreadsheetID, table.SpreadsheetID)
	doc.sheets[table.Sheet] = cloneRows(rows)
}

// Rows returns a copy of the raw sheet content.
func (s *Store) Rows(table storage.TableRef) [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[table.SpreadsheetID]
	if !ok {
		return nil
	}
	return cloneRows(doc.sheets[table.Sheet])
}

// Writes returns how many mutating calls the store has served.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *Store) docLocked(id, name string) *spreadsheet {
	doc, ok := s.docs[id]
	if !ok {
		doc = &spreadsheet{
			info:   storage.SpreadsheetInfo{ID: id, Name: name},
			sheets: make(map[string][][]string),
		}
		s.docs[id] = doc
		s.order = append(s.order, id)
	}
	return doc
}

func (s *Store) sheetLocked(table storage.TableRef) ([][]string, error) {
	doc, ok := s.docs[table.SpreadsheetID]
	if !ok {
		return nil, fmt.Errorf("spreadsheet %q not found", table.SpreadsheetID)
	}
	rows, ok := doc.sheets[table.Sheet]
	if !ok {
		return nil, fmt.Errorf("sheet %q not found", table)
	}
	return rows, nil
}

func (s *Store) ReadRows(_ context.Context, table storage.TableRef, width int) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.sheetLocked(table)
	if err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, clip(row, width))
	}
	return out, nil
}

func (s *Store) ReadRow(_ context.Context, table storage.TableRef, row, width int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.sheetLocked(table)
	if err != nil {
		return nil, err
	}
	if row < 1 || row > len(rows) {
		return []string{}, nil
	}
	return clip(rows[row-1], width), nil
}

func (s *Store) WriteCells(_ context.Context, table storage.TableRef, writes []storage.CellWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.sheetLocked(table)
	if err != nil {
		return err
	}
	// A batch applies whole or not at all.
	for _, w := range writes {
		if w.Row < 1 || w.Column < 0 {
			return fmt.Errorf("invalid cell row=%d column=%d", w.Row, w.Column)
		}
	}
	rows = cloneRows(rows)
	for _, w := range writes {
		for len(rows) < w.Row {
			rows = append(rows, []string{})
		}
		row := rows[w.Row-1]
		for len(row) <= w.Column {
			row = append(row, "")
		}
		row[w.Column] = fmt.Sprint(w.Value)
		rows[w.Row-1] = row
	}
	s.docs[table.SpreadsheetID].sheets[table.Sheet] = rows
	s.writes++
	return nil
}

func (s *Store) AppendRow(_ context.Context, table storage.TableRef, values []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.sheetLocked(table)
	if err != nil {
		return err
	}
	row := make([]string, len(values))
	for i, v := range values {
		row[i] = fmt.Sprint(v)
	}
	s.docs[table.SpreadsheetID].sheets[table.Sheet] = append(rows, row)
	s.writes++
	return nil
}

func (s *Store) EnsureSheet(_ context.Context, table storage.TableRef, header []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docLocked(table.SpreadsheetID, table.SpreadsheetID)
	if _, ok := doc.sheets[table.Sheet]; ok {
		return false, nil
	}
	doc.sheets[table.Sheet] = [][]string{append([]string(nil), header...)}
	s.writes++
	return true, nil
}

func (s *Store) ListSpreadsheets(context.Context) ([]storage.SpreadsheetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.SpreadsheetInfo, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id].info)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateSpreadsheet(_ context.Context, title, sheet string, header []string) (storage.SpreadsheetInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.docLocked(uuid.NewString(), title)
	doc.sheets[sheet] = [][]string{append([]string(nil), header...)}
	s.writes++
	return doc.info, nil
}

func clip(row []string, width int) []string {
	if width > 0 && len(row) > width {
		row = row[:width]
	}
	end := len(row)
	for end > 0 && row[end-1] == "" {
		end--
	}
	return append([]string{}, row[:end]...)
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = append([]string{}, r...)
	}
	return out
}
