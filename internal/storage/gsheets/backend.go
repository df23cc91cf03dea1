// Package gsheets stores tables in Google Sheets and lists spreadsheets
// through Google Drive.
package gsheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"sheetboard/internal/storage"
)

const (
	valueInputRaw   = "RAW"
	spreadsheetMime = "application/vnd.google-apps.spreadsheet"
)

// Factory creates backends that share one circuit breaker, so a failing
// Google endpoint stops taking traffic from every user at once.
type Factory struct {
	base    []option.ClientOption
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewFactory returns a factory. opts are applied to every client it builds.
func NewFactory(logger *slog.Logger, opts ...option.ClientOption) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{base: opts, logger: logger}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "google-sheets",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return f
}

// isBreakerSuccess keeps caller mistakes such as a missing spreadsheet or a
// revoked token from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code >= 400 && gerr.Code < 500 && gerr.Code != http.StatusTooManyRequests
	}
	return errors.Is(err, context.Canceled)
}

// ForToken returns a backend acting as the owner of accessToken.
func (f *Factory) ForToken(ctx context.Context, accessToken string) (storage.Backend, error) {
	if accessToken == "" {
		return nil, errors.New("empty access token")
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return f.open(ctx, option.WithTokenSource(ts))
}

// ServiceAccount returns a backend authenticated with a service account key.
// credentialsJSON takes precedence over credentialsFile.
func (f *Factory) ServiceAccount(ctx context.Context, credentialsJSON []byte, credentialsFile string) (storage.Backend, error) {
	var cred option.ClientOption
	switch {
	case len(credentialsJSON) > 0:
		cred = option.WithCredentialsJSON(credentialsJSON)
	case credentialsFile != "":
		cred = option.WithCredentialsFile(credentialsFile)
	default:
		return nil, errors.New("no service account credentials configured")
	}
	return f.open(ctx, cred, option.WithScopes(sheets.SpreadsheetsScope, drive.DriveReadonlyScope))
}

func (f *Factory) open(ctx context.Context, extra ...option.ClientOption) (*Backend, error) {
	opts := append(append([]option.ClientOption{}, extra...), f.base...)
	sheetsSvc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	driveSvc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive client: %w", err)
	}
	return &Backend{sheets: sheetsSvc, drive: driveSvc, breaker: f.breaker}, nil
}

// Backend is a storage.Backend over the Sheets v4 and Drive v3 APIs.
type Backend struct {
	sheets  *sheets.Service
	drive   *drive.Service
	breaker *gobreaker.CircuitBreaker
}

var _ storage.Backend = (*Backend)(nil)

func (b *Backend) call(fn func() (any, error)) (any, error) {
	return b.breaker.Execute(fn)
}

func (b *Backend) getValues(ctx context.Context, spreadsheetID, rng string) ([][]string, error) {
	res, err := b.call(func() (any, error) {
		return b.sheets.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("get values %s: %w", rng, err)
	}
	return toStrings(res.(*sheets.ValueRange).Values), nil
}

func (b *Backend) ReadRows(ctx context.Context, table storage.TableRef, width int) ([][]string, error) {
	return b.getValues(ctx, table.SpreadsheetID, columnsRange(table.Sheet, width))
}

func (b *Backend) ReadRow(ctx context.Context, table storage.TableRef, row, width int) ([]string, error) {
	rows, err := b.getValues(ctx, table.SpreadsheetID, rowRange(table.Sheet, row, width))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

func (b *Backend) WriteCells(ctx context.Context, table storage.TableRef, writes []storage.CellWrite) error {
	if len(writes) == 0 {
		return nil
	}
	data := make([]*sheets.ValueRange, 0, len(writes))
	for _, w := range writes {
		data = append(data, &sheets.ValueRange{
			Range:  cellRange(table.Sheet, w.Row, w.Column),
			Values: [][]interface{}{{w.Value}},
		})
	}
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: valueInputRaw, Data: data}
	_, err := b.call(func() (any, error) {
		return b.sheets.Spreadsheets.Values.BatchUpdate(table.SpreadsheetID, req).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("batch update %s: %w", table, err)
	}
	return nil
}

func (b *Backend) AppendRow(ctx context.Context, table storage.TableRef, values []any) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	rng := rowRange(table.Sheet, 1, max(len(values), 1))
	_, err := b.call(func() (any, error) {
		return b.sheets.Spreadsheets.Values.Append(table.SpreadsheetID, rng, vr).
			ValueInputOption(valueInputRaw).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("append %s: %w", table, err)
	}
	return nil
}

func (b *Backend) writeHeader(ctx context.Context, table storage.TableRef, header []string) error {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := b.call(func() (any, error) {
		return b.sheets.Spreadsheets.Values.Update(table.SpreadsheetID, rowRange(table.Sheet, 1, len(header)), vr).
			ValueInputOption(valueInputRaw).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("write header %s: %w", table, err)
	}
	return nil
}

func (b *Backend) EnsureSheet(ctx context.Context, table storage.TableRef, header []string) (bool, error) {
	res, err := b.call(func() (any, error) {
		return b.sheets.Spreadsheets.Get(table.SpreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	})
	if err != nil {
		return false, fmt.Errorf("get spreadsheet %s: %w", table.SpreadsheetID, err)
	}
	for _, sh := range res.(*sheets.Spreadsheet).Sheets {
		if sh.Properties != nil && sh.Properties.Title == table.Sheet {
			return false, nil
		}
	}

	add := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: table.Sheet}},
		}},
	}
	_, err = b.call(func() (any, error) {
		return b.sheets.Spreadsheets.BatchUpdate(table.SpreadsheetID, add).Context(ctx).Do()
	})
	if err != nil {
		return false, fmt.Errorf("add sheet %s: %w", table, err)
	}
	if err := b.writeHeader(ctx, table, header); err != nil {
		return true, err
	}
	return true, nil
}

func (b *Backend) ListSpreadsheets(ctx context.Context) ([]storage.SpreadsheetInfo, error) {
	res, err := b.call(func() (any, error) {
		return b.drive.Files.List().
			Q(fmt.Sprintf("mimeType='%s'", spreadsheetMime)).
			Fields("files(id, name, createdTime)").
			OrderBy("modifiedTime desc").
			Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("list spreadsheets: %w", err)
	}
	files := res.(*drive.FileList).Files
	out := make([]storage.SpreadsheetInfo, 0, len(files))
	for _, f := range files {
		out = append(out, storage.SpreadsheetInfo{ID: f.Id, Name: f.Name, CreatedTime: f.CreatedTime})
	}
	return out, nil
}

func (b *Backend) CreateSpreadsheet(ctx context.Context, title, sheet string, header []string) (storage.SpreadsheetInfo, error) {
	doc := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{Title: title},
		Sheets:     []*sheets.Sheet{{Properties: &sheets.SheetProperties{Title: sheet}}},
	}
	res, err := b.call(func() (any, error) {
		return b.sheets.Spreadsheets.Create(doc).Context(ctx).Do()
	})
	if err != nil {
		return storage.SpreadsheetInfo{}, fmt.Errorf("create spreadsheet: %w", err)
	}
	id := res.(*sheets.Spreadsheet).SpreadsheetId
	if err := b.writeHeader(ctx, storage.TableRef{SpreadsheetID: id, Sheet: sheet}, header); err != nil {
		return storage.SpreadsheetInfo{}, err
	}
	return storage.SpreadsheetInfo{ID: id, Name: title}, nil
}

func toStrings(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			if v != nil {
				cells[j] = fmt.Sprint(v)
			}
		}
		out[i] = cells
	}
	return out
}
