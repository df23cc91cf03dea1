// Package tasks reads and partially updates the task table linked to a
// project.
package tasks

import (
	"context"
	"log/slog"
	"sync"

	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
	"sheetboard/internal/rowcodec"
	"sheetboard/internal/storage"
)

// DefaultSheet is the sheet title holding tasks in a linked spreadsheet.
const DefaultSheet = "Tasks"

// Board is the result of listing a task table.
type Board struct {
	Tasks   []models.Task `json:"tasks"`
	Columns []string      `json:"columns"`
}

// Repository accesses task tables with the caller's access token.
type Repository struct {
	backends storage.TokenBackends
	sheet    string
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRepository builds a repository reading the named sheet of each linked
// spreadsheet. An empty sheet selects DefaultSheet.
func NewRepository(backends storage.TokenBackends, sheet string, logger *slog.Logger) *Repository {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		backends: backends,
		sheet:    sheet,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (r *Repository) table(project models.Project) storage.TableRef {
	return storage.TableRef{SpreadsheetID: project.LinkedSheetID, Sheet: r.sheet}
}

// tableLock serializes scan-then-write sequences against one spreadsheet
// within this process.
func (r *Repository) tableLock(spreadsheetID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[spreadsheetID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[spreadsheetID] = l
	}
	return l
}

func (r *Repository) backend(ctx context.Context, accessToken string) (storage.Backend, error) {
	if accessToken == "" {
		return nil, apperr.Unauthenticated("Google OAuth token is required")
	}
	b, err := r.backends.ForToken(ctx, accessToken)
	if err != nil {
		return nil, apperr.Upstream(err, "Failed to connect to Google Sheets")
	}
	return b, nil
}

// List returns every task of the project's table together with the board
// columns derived from their statuses.
func (r *Repository) List(ctx context.Context, project models.Project, accessToken string) (Board, error) {
	b, err := r.backend(ctx, accessToken)
	if err != nil {
		return Board{}, err
	}
	rows, err := b.ReadRows(ctx, r.table(project), rowcodec.TaskWidth)
	if err != nil {
		return Board{}, apperr.Upstream(err, "Failed to fetch tasks")
	}
	tasks := rowcodec.DecodeTasks(rows)
	return Board{Tasks: tasks, Columns: rowcodec.Columns(tasks)}, nil
}

// Update writes the set fields of changes onto the task with id taskID and
// returns the row as stored afterwards.
func (r *Repository) Update(ctx context.Context, project models.Project, taskID string, changes models.TaskChanges, accessToken string) (models.Task, error) {
	if taskID == "" {
		return models.Task{}, apperr.Invalid("Task ID is required")
	}
	if err := ValidateChanges(changes); err != nil {
		return models.Task{}, err
	}
	b, err := r.backend(ctx, accessToken)
	if err != nil {
		return models.Task{}, err
	}

	lock := r.tableLock(project.LinkedSheetID)
	lock.Lock()
	defer lock.Unlock()

	table := r.table(project)
	rows, err := b.ReadRows(ctx, table, rowcodec.TaskWidth)
	if err != nil {
		return models.Task{}, apperr.Upstream(err, "Failed to update task")
	}

	rowIndex := findRow(rowcodec.DecodeTasks(rows), taskID)
	if rowIndex == 0 {
		return models.Task{}, apperr.NotFound("Task not found")
	}

	// Other sheet editors may insert or remove rows at any time. The target
	// row must still hold taskID when the write goes out.
	current, err := b.ReadRow(ctx, table, rowIndex, rowcodec.TaskWidth)
	if err != nil {
		return models.Task{}, apperr.Upstream(err, "Failed to update task")
	}
	if found := rowcodec.DecodeTask(current, rowIndex).ID; found != taskID {
		r.logger.Warn("task row moved before update",
			slog.String("sheet", table.String()),
			slog.String("task", taskID),
			slog.Int("row", rowIndex),
			slog.String("found", found))
		return models.Task{}, apperr.Conflict("Task row changed while updating, reload and retry")
	}

	writes := rowcodec.EncodeTaskChanges(rowIndex, changes)
	if err := b.WriteCells(ctx, table, writes); err != nil {
		return models.Task{}, apperr.Upstream(err, "Failed to update task")
	}

	updated, err := r.reread(ctx, b, table, taskID, rowIndex)
	if err != nil {
		return models.Task{}, err
	}

	r.logger.Debug("task updated",
		slog.String("sheet", table.String()),
		slog.String("task", taskID),
		slog.Int("row", updated.RowIndex),
		slog.Int("cells", len(writes)))
	return updated, nil
}

func findRow(tasks []models.Task, taskID string) int {
	for _, t := range tasks {
		if t.ID == taskID {
			return t.RowIndex
		}
	}
	return 0
}

// reread returns the task as stored after a write. The write has landed, so a
// row that moved since is looked up again instead of being reported as a
// failure.
func (r *Repository) reread(ctx context.Context, b storage.Backend, table storage.TableRef, taskID string, rowIndex int) (models.Task, error) {
	row, err := b.ReadRow(ctx, table, rowIndex, rowcodec.TaskWidth)
	if err != nil {
		return models.Task{}, apperr.Upstream(err, "Failed to update task")
	}
	if t := rowcodec.DecodeTask(row, rowIndex); t.ID == taskID {
		return t, nil
	}

	rows, err := b.ReadRows(ctx, table, rowcodec.TaskWidth)
	if err != nil {
		return models.Task{}, apperr.Upstream(err, "Failed to update task")
	}
	for _, t := range rowcodec.DecodeTasks(rows) {
		if t.ID == taskID {
			r.logger.Info("task row moved after update",
				slog.String("sheet", table.String()),
				slog.String("task", taskID),
				slog.Int("from", rowIndex),
				slog.Int("to", t.RowIndex))
			return t, nil
		}
	}
	return models.Task{}, apperr.Conflict("Task was removed while updating, reload and retry")
}
