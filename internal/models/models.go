package models

import (
	"encoding/json"
	"strconv"
)

// Role is the permission level of a user.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleMember Role = "Member"
)

// Task is a single card on the board, materialized from one spreadsheet row.
type Task struct {
	ID            string `json:"id"`
	TaskName      string `json:"taskName"`
	Description   string `json:"description"`
	AssigneeEmail string `json:"assigneeEmail"`
	Status        string `json:"status"`
	DueDate       string `json:"dueDate"`
	StartDate     string `json:"startDate"`
	Progress      int    `json:"progress"`
	// RowIndex is the 1-based sheet row the task was read from. It is only
	// valid for the snapshot it came from.
	RowIndex int `json:"rowIndex"`
}

// Project links a named body of work to the spreadsheet holding its tasks.
type Project struct {
	ProjectID     string `json:"projectId"`
	ProjectName   string `json:"projectName"`
	Description   string `json:"description"`
	LinkedSheetID string `json:"linkedSheetId"`
	CreatedBy     string `json:"createdBy"`
	CreatedAt     string `json:"createdAt"`
}

// User is an account stored in the Users table.
type User struct {
	Email          string `json:"email"`
	HashedPassword string `json:"-"`
	Role           Role   `json:"role"`
}

// Principal identifies the caller of a request.
type Principal struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// IsAdmin reports whether the principal carries the Admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// TaskChanges holds a partial task update. Nil fields are left untouched.
type TaskChanges struct {
	TaskName      *string      `json:"taskName,omitempty"`
	Description   *string      `json:"description,omitempty"`
	AssigneeEmail *string      `json:"assigneeEmail,omitempty"`
	Status        *string      `json:"newStatus,omitempty"`
	DueDate       *string      `json:"dueDate,omitempty"`
	StartDate     *string      `json:"startDate,omitempty"`
	Progress      *json.Number `json:"progress,omitempty"`
}

// Empty reports whether no field is set.
func (c TaskChanges) Empty() bool {
	return c.TaskName == nil &&
		c.Description == nil &&
		c.AssigneeEmail == nil &&
		c.Status == nil &&
		c.DueDate == nil &&
		c.StartDate == nil &&
		c.Progress == nil
}

// Apply returns a copy of t with the set fields of c written over it.
// A progress value that is not an integer is ignored.
func (t Task) Apply(c TaskChanges) Task {
	if c.TaskName != nil {
		t.TaskName = *c.TaskName
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.AssigneeEmail != nil {
		t.AssigneeEmail = *c.AssigneeEmail
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.DueDate != nil {
		t.DueDate = *c.DueDate
	}
	if c.StartDate != nil {
		t.StartDate = *c.StartDate
	}
	if c.Progress != nil {
		if p, err := c.Progress.Int64(); err == nil {
			t.Progress = int(p)
		}
	}
	return t
}

// String returns a pointer to s, for building TaskChanges.
func String(s string) *string {
	return &s
}

// Progress returns a progress value for TaskChanges.
func Progress(p int) *json.Number {
	n := json.Number(strconv.Itoa(p))
	return &n
}
