// Package rowcodec maps fixed-position spreadsheet rows to records and back.
package rowcodec

import (
	"fmt"
	"strconv"
	"strings"

	"sheetboard/internal/models"
	"sheetboard/internal/storage"
)

// Task table columns, in sheet order.
const (
	ColID = iota
	ColTaskName
	ColDescription
	ColAssigneeEmail
	ColStatus
	ColDueDate
	ColStartDate
	ColProgress

	TaskWidth
)

// DefaultStatus is used for rows with an empty status cell.
const DefaultStatus = "To Do"

var (
	// TaskHeaders is the full task table header.
	TaskHeaders = []string{"ID", "TaskName", "Description", "AssigneeEmail", "Status", "DueDate", "StartDate", "Progress"}
	// RequiredTaskHeaders must lead every task table. StartDate and Progress
	// are optional trailing columns.
	RequiredTaskHeaders = TaskHeaders[:ColStartDate:ColStartDate]
	// DefaultColumns is the board layout for tables without any status.
	DefaultColumns = []string{"To Do", "In Progress", "Done"}

	ProjectHeaders = []string{"ProjectID", "ProjectName", "Description", "LinkedSheetID", "CreatedBy", "CreatedAt"}
	UserHeaders    = []string{"Email", "HashedPassword", "Role"}
)

// FirstDataRow is the sheet row of the first record.
const FirstDataRow = 2

// PlaceholderID names a task whose ID cell is blank. ordinal is the 1-based
// position among data rows.
func PlaceholderID(ordinal int) string {
	return fmt.Sprintf("task-%d", ordinal)
}

// DecodeTask decodes the row stored at sheet row rowIndex. Short rows are
// padded with defaults.
func DecodeTask(row []string, rowIndex int) models.Task {
	t := models.Task{
		ID:            storage.Cell(row, ColID),
		TaskName:      storage.Cell(row, ColTaskName),
		Description:   storage.Cell(row, ColDescription),
		AssigneeEmail: storage.Cell(row, ColAssigneeEmail),
		Status:        storage.Cell(row, ColStatus),
		DueDate:       storage.Cell(row, ColDueDate),
		StartDate:     storage.Cell(row, ColStartDate),
		Progress:      parseProgress(storage.Cell(row, ColProgress)),
		RowIndex:      rowIndex,
	}
	if t.ID == "" {
		t.ID = PlaceholderID(rowIndex - FirstDataRow + 1)
	}
	if t.Status == "" {
		t.Status = DefaultStatus
	}
	return t
}

// parseProgress reads the leading integer of s, so "40%" is 40 and junk is 0.
func parseProgress(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[0] == '-' || s[0] == '+')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

// DecodeTasks decodes a full table read, skipping the header row.
func DecodeTasks(rows [][]string) []models.Task {
	tasks := make([]models.Task, 0, max(len(rows)-1, 0))
	for i := 1; i < len(rows); i++ {
		tasks = append(tasks, DecodeTask(rows[i], i+1))
	}
	return tasks
}

// Columns returns the distinct statuses of tasks in first-seen order, or
// DefaultColumns when there are none.
func Columns(tasks []models.Task) []string {
	seen := make(map[string]struct{}, len(tasks))
	var cols []string
	for _, t := range tasks {
		if t.Status == "" {
			continue
		}
		if _, ok := seen[t.Status]; ok {
			continue
		}
		seen[t.Status] = struct{}{}
		cols = append(cols, t.Status)
	}
	if len(cols) == 0 {
		return append([]string(nil), DefaultColumns...)
	}
	return cols
}

// EncodeTaskChanges turns the set fields of c into cell writes on rowIndex.
// The ID column is never written.
func EncodeTaskChanges(rowIndex int, c models.TaskChanges) []storage.CellWrite {
	var writes []storage.CellWrite
	set := func(col int, v *string) {
		if v != nil {
			writes = append(writes, storage.CellWrite{Row: rowIndex, Column: col, Value: *v})
		}
	}
	set(ColTaskName, c.TaskName)
	set(ColDescription, c.Description)
	set(ColAssigneeEmail, c.AssigneeEmail)
	set(ColStatus, c.Status)
	set(ColDueDate, c.DueDate)
	set(ColStartDate, c.StartDate)
	if c.Progress != nil {
		var v any = c.Progress.String()
		if n, err := c.Progress.Int64(); err == nil {
			v = n
		}
		writes = append(writes, storage.CellWrite{Row: rowIndex, Column: ColProgress, Value: v})
	}
	return writes
}

// HasTaskHeaders reports whether header starts with RequiredTaskHeaders.
func HasTaskHeaders(header []string) bool {
	if len(header) < len(RequiredTaskHeaders) {
		return false
	}
	for i, h := range RequiredTaskHeaders {
		if strings.TrimSpace(header[i]) != h {
			return false
		}
	}
	return true
}

// DecodeProject decodes one Projects row.
func DecodeProject(row []string) models.Project {
	return models.Project{
		ProjectID:     storage.Cell(row, 0),
		ProjectName:   storage.Cell(row, 1),
		Description:   storage.Cell(row, 2),
		LinkedSheetID: storage.Cell(row, 3),
		CreatedBy:     storage.Cell(row, 4),
		CreatedAt:     storage.Cell(row, 5),
	}
}

// EncodeProject returns p as a Projects row.
func EncodeProject(p models.Project) []any {
	return []any{p.ProjectID, p.ProjectName, p.Description, p.LinkedSheetID, p.CreatedBy, p.CreatedAt}
}

// DecodeProjects decodes a Projects read, skipping the header and blank rows.
func DecodeProjects(rows [][]string) []models.Project {
	var out []models.Project
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		out = append(out, DecodeProject(rows[i]))
	}
	return out
}

// DecodeUser decodes one Users row. A blank role means Member.
func DecodeUser(row []string) models.User {
	u := models.User{
		Email:          strings.TrimSpace(storage.Cell(row, 0)),
		HashedPassword: storage.Cell(row, 1),
		Role:           models.Role(storage.Cell(row, 2)),
	}
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	return u
}

// EncodeUser returns u as a Users row.
func EncodeUser(u models.User) []any {
	return []any{u.Email, u.HashedPassword, string(u.Role)}
}

// DecodeUsers decodes a Users read, skipping the header and blank rows.
func DecodeUsers(rows [][]string) []models.User {
	var out []models.User
	for i := 1; i < len(rows); i++ {
		if len(rows[i]) == 0 {
			continue
		}
		out = append(out, DecodeUser(rows[i]))
	}
	return out
}
