package board

import (
	"context"
	"sync"

	"sheetboard/internal/models"
)

// State is the lifecycle position of an Edit.
type State int

const (
	Idle State = iota
	Optimistic
	Reconciled
	RolledBack
)

func (s State) String() string {
	switch s {
	case Optimistic:
		return "optimistic"
	case Reconciled:
		return "reconciled"
	case RolledBack:
		return "rolled_back"
	default:
		return "idle"
	}
}

// Edit tracks one pending change to a task.
type Edit struct {
	taskID     string
	before     models.Task
	optimistic models.Task
	done       chan struct{}

	mu           sync.Mutex
	state        State
	err          error
	notification Notification
}

func newEdit(taskID string, before, optimistic models.Task) *Edit {
	return &Edit{
		taskID:     taskID,
		before:     before,
		optimistic: optimistic,
		done:       make(chan struct{}),
		state:      Optimistic,
	}
}

// TaskID returns the id of the edited task.
func (e *Edit) TaskID() string { return e.taskID }

// State returns the current state.
func (e *Edit) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the save error once the edit rolled back.
func (e *Edit) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// Notification returns the message produced when the edit settled.
func (e *Edit) Notification() Notification {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notification
}

// Done is closed when the edit settles.
func (e *Edit) Done() <-chan struct{} { return e.done }

// Wait blocks until the edit settles or ctx is done and returns the final
// state.
func (e *Edit) Wait(ctx context.Context) (State, error) {
	select {
	case <-e.done:
		return e.State(), nil
	case <-ctx.Done():
		return e.State(), ctx.Err()
	}
}

func (e *Edit) settle(s State, err error, n Notification) {
	e.mu.Lock()
	e.state = s
	e.err = err
	e.notification = n
	e.mu.Unlock()
	close(e.done)
}
