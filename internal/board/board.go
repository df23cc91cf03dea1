// Package board keeps a local copy of a project's tasks and applies edits to
// it optimistically. Each edit is sent to the server in the background and is
// then reconciled with the server's copy or rolled back.
package board

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
)

// FallbackError is shown when a failed save carries no server message.
const FallbackError = "Failed to save task"

// SavedMessage is shown after a save is confirmed.
const SavedMessage = "Task saved"

var (
	// ErrEditPending is returned when a task already has an unconfirmed edit.
	ErrEditPending = errors.New("board: task has a pending edit")
	// ErrUnknownTask is returned for ids missing from the local list.
	ErrUnknownTask = errors.New("board: unknown task")
)

// Updater sends one partial update to the server and returns the stored task.
type Updater interface {
	UpdateTask(ctx context.Context, taskID string, changes models.TaskChanges) (models.Task, error)
}

// Level is the severity of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is the transient message produced when an edit settles.
type Notification struct {
	Level   Level
	Message string
}

// Option configures a Board.
type Option func(*Board)

// WithNotifier registers fn to receive every notification. It is called
// without the board lock held.
func WithNotifier(fn func(Notification)) Option {
	return func(b *Board) { b.notify = fn }
}

// WithLogger sets the logger used for settled edits.
func WithLogger(l *slog.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// Board is the local task state of one project.
type Board struct {
	updater Updater
	notify  func(Notification)
	logger  *slog.Logger

	mu      sync.Mutex
	tasks   []models.Task
	columns []string
	pending map[string]*Edit
}

// New returns an empty board that saves edits through u.
func New(u Updater, opts ...Option) *Board {
	b := &Board{
		updater: u,
		pending: make(map[string]*Edit),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Load replaces the local state with a freshly fetched task list.
func (b *Board) Load(tasks []models.Task, columns []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append([]models.Task(nil), tasks...)
	b.columns = append([]string(nil), columns...)
}

// Tasks returns a copy of the local task list.
func (b *Board) Tasks() []models.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Task(nil), b.tasks...)
}

// Columns returns a copy of the board columns.
func (b *Board) Columns() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.columns...)
}

// Task returns the local copy of the task with the given id.
func (b *Board) Task(id string) (models.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexLocked(id); i >= 0 {
		return b.tasks[i], true
	}
	return models.Task{}, false
}

func (b *Board) indexLocked(id string) int {
	for i := range b.tasks {
		if b.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// Edit applies changes to the local task at once and saves them in the
// background. The returned handle settles when the server answers.
func (b *Board) Edit(ctx context.Context, taskID string, changes models.TaskChanges) (*Edit, error) {
	b.mu.Lock()
	i := b.indexLocked(taskID)
	if i < 0 {
		b.mu.Unlock()
		return nil, ErrUnknownTask
	}
	if _, busy := b.pending[taskID]; busy {
		b.mu.Unlock()
		return nil, ErrEditPending
	}
	before := b.tasks[i]
	b.tasks[i] = before.Apply(changes)
	e := newEdit(taskID, before, b.tasks[i])
	b.pending[taskID] = e
	b.mu.Unlock()

	go b.save(ctx, e, changes)
	return e, nil
}

// Move changes the status of a task, as a drop into another column. A move
// into the task's current column does nothing and returns a nil handle.
func (b *Board) Move(ctx context.Context, taskID, status string) (*Edit, error) {
	t, ok := b.Task(taskID)
	if !ok {
		return nil, ErrUnknownTask
	}
	if t.Status == status {
		return nil, nil
	}
	return b.Edit(ctx, taskID, models.TaskChanges{Status: &status})
}

func (b *Board) save(ctx context.Context, e *Edit, changes models.TaskChanges) {
	saved, err := b.updater.UpdateTask(ctx, e.taskID, changes)

	var n Notification
	b.mu.Lock()
	delete(b.pending, e.taskID)
	i := b.indexLocked(e.taskID)
	if err != nil {
		// A Load during the save already replaced the optimistic value.
		if i >= 0 && b.tasks[i] == e.optimistic {
			b.tasks[i] = e.before
		}
		n = Notification{Level: LevelError, Message: apperr.Message(err, FallbackError)}
	} else {
		if i >= 0 {
			b.tasks[i] = saved
		}
		n = Notification{Level: LevelSuccess, Message: SavedMessage}
	}
	b.mu.Unlock()

	if b.notify != nil {
		b.notify(n)
	}
	if err != nil {
		b.logger.Warn("task edit rolled back", slog.String("task", e.taskID), slog.String("error", err.Error()))
		e.settle(RolledBack, err, n)
		return
	}
	b.logger.Debug("task edit saved", slog.String("task", e.taskID))
	e.settle(Reconciled, nil, n)
}
