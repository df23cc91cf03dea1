package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"sheetboard/internal/storage"
)

// Store emulates spreadsheets on top of a local SQLite database, so the
// application can run without a Google account.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Backend = (*Store)(nil)

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{db: conn, logger: logger}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spreadsheets (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS sheets (
            spreadsheet_id TEXT NOT NULL,
            title TEXT NOT NULL,
            PRIMARY KEY (spreadsheet_id, title),
            FOREIGN KEY(spreadsheet_id) REFERENCES spreadsheets(id) ON DELETE CASCADE
        );`,
		`CREATE TABLE IF NOT EXISTS cells (
            spreadsheet_id TEXT NOT NULL,
            sheet TEXT NOT NULL,
            row_num INTEGER NOT NULL,
            col_num INTEGER NOT NULL,
            value TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (spreadsheet_id, sheet, row_num, col_num),
            FOREIGN KEY(spreadsheet_id, sheet) REFERENCES sheets(spreadsheet_id, title) ON DELETE CASCADE
        );`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) sheetExists(ctx context.Context, q queryer, table storage.TableRef) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM sheets WHERE spreadsheet_id = ? AND title = ?`, table.SpreadsheetID, table.Sheet).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup sheet: %w", err)
	}
	return n > 0, nil
}

func (s *Store) requireSheet(ctx context.Context, table storage.TableRef) error {
	ok, err := s.sheetExists(ctx, s.db, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sheet %s not found", table)
	}
	return nil
}

// ReadRows returns every row up to the last non-empty one. Interior gaps are
// returned as empty rows, like the Sheets API does.
func (s *Store) ReadRows(ctx context.Context, table storage.TableRef, width int) ([][]string, error) {
	if err := s.requireSheet(ctx, table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT row_num, col_num, value FROM cells
        WHERE spreadsheet_id = ? AND sheet = ? AND col_num < ? AND value != ''
        ORDER BY row_num, col_num`, table.SpreadsheetID, table.Sheet, width)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var r, c int
		var v string
		if err := rows.Scan(&r, &c, &v); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		for len(out) < r {
			out = append(out, []string{})
		}
		row := out[r-1]
		for len(row) <= c {
			row = append(row, "")
		}
		row[c] = v
		out[r-1] = row
	}
	if out == nil {
		out = [][]string{}
	}
	return out, rows.Err()
}

// ReadRow returns one row limited to width columns.
func (s *Store) ReadRow(ctx context.Context, table storage.TableRef, row, width int) ([]string, error) {
	if err := s.requireSheet(ctx, table); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT col_num, value FROM cells
        WHERE spreadsheet_id = ? AND sheet = ? AND row_num = ? AND col_num < ? AND value != ''
        ORDER BY col_num`, table.SpreadsheetID, table.Sheet, row, width)
	if err != nil {
		return nil, fmt.Errorf("read row: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var c int
		var v string
		if err := rows.Scan(&c, &v); err != nil {
			return nil, fmt.Errorf("scan cell: %w", err)
		}
		for len(out) <= c {
			out = append(out, "")
		}
		out[c] = v
	}
	return out, rows.Err()
}

// WriteCells upserts all cells in one transaction.
func (s *Store) WriteCells(ctx context.Context, table storage.TableRef, writes []storage.CellWrite) error {
	if err := s.requireSheet(ctx, table); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range writes {
		if w.Row < 1 || w.Column < 0 {
			return fmt.Errorf("invalid cell row=%d column=%d", w.Row, w.Column)
		}
		if err := upsertCell(ctx, tx, table, w.Row, w.Column, fmt.Sprint(w.Value)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendRow writes values below the last row holding any value.
func (s *Store) AppendRow(ctx context.Context, table storage.TableRef, values []any) error {
	if err := s.requireSheet(ctx, table); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	next, err := nextRow(ctx, tx, table)
	if err != nil {
		return err
	}
	for col, v := range values {
		if err := upsertCell(ctx, tx, table, next, col, fmt.Sprint(v)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// EnsureSheet creates the sheet and its header row when missing. The
// spreadsheet itself is created as well, named after its id.
func (s *Store) EnsureSheet(ctx context.Context, table storage.TableRef, header []string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ok, err := s.sheetExists(ctx, tx, table)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO spreadsheets(id, name) VALUES(?, ?)`, table.SpreadsheetID, table.SpreadsheetID); err != nil {
		return false, fmt.Errorf("insert spreadsheet: %w", err)
	}
	if err := createSheet(ctx, tx, table, header); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("sheet created", slog.String("sheet", table.String()))
	return true, nil
}

// ListSpreadsheets returns all spreadsheets, newest first.
func (s *Store) ListSpreadsheets(ctx context.Context) ([]storage.SpreadsheetInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM spreadsheets ORDER BY created_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list spreadsheets: %w", err)
	}
	defer rows.Close()

	out := []storage.SpreadsheetInfo{}
	for rows.Next() {
		var info storage.SpreadsheetInfo
		var created time.Time
		if err := rows.Scan(&info.ID, &info.Name, &created); err != nil {
			return nil, fmt.Errorf("scan spreadsheet: %w", err)
		}
		info.CreatedTime = created.UTC().Format(time.RFC3339)
		out = append(out, info)
	}
	return out, rows.Err()
}

// CreateSpreadsheet inserts a spreadsheet with a single sheet.
func (s *Store) CreateSpreadsheet(ctx context.Context, title, sheet string, header []string) (storage.SpreadsheetInfo, error) {
	if strings.TrimSpace(title) == "" {
		return storage.SpreadsheetInfo{}, fmt.Errorf("spreadsheet title must not be empty")
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.SpreadsheetInfo{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO spreadsheets(id, name) VALUES(?, ?)`, id, title); err != nil {
		return storage.SpreadsheetInfo{}, fmt.Errorf("insert spreadsheet: %w", err)
	}
	if err := createSheet(ctx, tx, storage.TableRef{SpreadsheetID: id, Sheet: sheet}, header); err != nil {
		return storage.SpreadsheetInfo{}, err
	}
	if err := tx.Commit(); err != nil {
		return storage.SpreadsheetInfo{}, fmt.Errorf("commit: %w", err)
	}
	return storage.SpreadsheetInfo{ID: id, Name: title}, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func createSheet(ctx context.Context, tx *sql.Tx, table storage.TableRef, header []string) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO sheets(spreadsheet_id, title) VALUES(?, ?)`, table.SpreadsheetID, table.Sheet); err != nil {
		return fmt.Errorf("insert sheet: %w", err)
	}
	for col, h := range header {
		if err := upsertCell(ctx, tx, table, 1, col, h); err != nil {
			return err
		}
	}
	return nil
}

func upsertCell(ctx context.Context, tx *sql.Tx, table storage.TableRef, row, col int, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO cells(spreadsheet_id, sheet, row_num, col_num, value) VALUES(?, ?, ?, ?, ?)
        ON CONFLICT(spreadsheet_id, sheet, row_num, col_num) DO UPDATE SET value = excluded.value`,
		table.SpreadsheetID, table.Sheet, row, col, value)
	if err != nil {
		return fmt.Errorf("write cell: %w", err)
	}
	return nil
}

func nextRow(ctx context.Context, tx *sql.Tx, table storage.TableRef) (int, error) {
	var last sql.NullInt64
	err := tx.QueryRowContext(ctx, `SELECT MAX(row_num) FROM cells WHERE spreadsheet_id = ? AND sheet = ? AND value != ''`,
		table.SpreadsheetID, table.Sheet).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !last.Valid) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select last row: %w", err)
	}
	return int(last.Int64) + 1, nil
}
