package rowcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetboard/internal/models"
	"sheetboard/internal/storage"
)

func TestDecodeTaskFullRow(t *testing.T) {
	row := []string{"T1", "Write docs", "All of them", "a@x.com", "In Progress", "2024-05-01", "2024-04-01", "40"}
	got := DecodeTask(row, 5)

	assert.Equal(t, models.Task{
		ID:            "T1",
		TaskName:      "Write docs",
		Description:   "All of them",
		AssigneeEmail: "a@x.com",
		Status:        "In Progress",
		DueDate:       "2024-05-01",
		StartDate:     "2024-04-01",
		Progress:      40,
		RowIndex:      5,
	}, got)
}

func TestDecodeTaskShortRowDefaults(t *testing.T) {
	tests := []struct {
		name string
		row  []string
	}{
		{name: "empty", row: nil},
		{name: "id only blank", row: []string{""}},
		{name: "three cells", row: []string{"", "name", "desc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecodeTask(tt.row, 4)
			assert.Equal(t, "task-3", got.ID)
			assert.Equal(t, DefaultStatus, got.Status)
			assert.Equal(t, 0, got.Progress)
			assert.Equal(t, 4, got.RowIndex)
		})
	}
}

func TestPlaceholderIDsAreUniquePerRow(t *testing.T) {
	tasks := DecodeTasks([][]string{TaskHeaders, {}, {""}, {"", "x"}})
	require.Len(t, tasks, 3)
	assert.Equal(t, []string{"task-1", "task-2", "task-3"}, []string{tasks[0].ID, tasks[1].ID, tasks[2].ID})
	assert.Equal(t, []int{2, 3, 4}, []int{tasks[0].RowIndex, tasks[1].RowIndex, tasks[2].RowIndex})
}

func TestProgressTolerance(t *testing.T) {
	tests := map[string]int{
		"":     0,
		"abc":  0,
		"75":   75,
		" 12 ": 12,
		"40%":  40,
		"12.7": 12,
		"-":    0,
	}
	for in, want := range tests {
		row := []string{"T", "", "", "", "", "", "", in}
		assert.Equal(t, want, DecodeTask(row, 2).Progress, "input %q", in)
	}
}

func TestColumns(t *testing.T) {
	assert.Equal(t, DefaultColumns, Columns(nil))

	tasks := []models.Task{{Status: "Review"}, {Status: "To Do"}, {Status: "Review"}, {Status: "Blocked"}}
	assert.Equal(t, []string{"Review", "To Do", "Blocked"}, Columns(tasks))
}

func TestColumnsDoesNotAliasDefaults(t *testing.T) {
	cols := Columns(nil)
	cols[0] = "changed"
	assert.Equal(t, "To Do", DefaultColumns[0])
}

func TestEncodeTaskChangesOnlySetFields(t *testing.T) {
	writes := EncodeTaskChanges(5, models.TaskChanges{Status: models.String("Done")})
	assert.Equal(t, []storage.CellWrite{{Row: 5, Column: ColStatus, Value: "Done"}}, writes)

	writes = EncodeTaskChanges(3, models.TaskChanges{
		Description: models.String(""),
		Progress:    models.Progress(60),
	})
	assert.Equal(t, []storage.CellWrite{
		{Row: 3, Column: ColDescription, Value: ""},
		{Row: 3, Column: ColProgress, Value: int64(60)},
	}, writes)

	assert.Empty(t, EncodeTaskChanges(3, models.TaskChanges{}))
}

func TestHasTaskHeaders(t *testing.T) {
	assert.True(t, HasTaskHeaders(TaskHeaders))
	assert.True(t, HasTaskHeaders(RequiredTaskHeaders))
	assert.False(t, HasTaskHeaders([]string{"ID", "TaskName"}))
	assert.False(t, HasTaskHeaders([]string{"TaskName", "ID", "Description", "AssigneeEmail", "Status", "DueDate"}))
}

func TestProjectRoundTrip(t *testing.T) {
	p := models.Project{ProjectID: "p1", ProjectName: "Apollo", LinkedSheetID: "sheet", CreatedBy: "alice@x.com", CreatedAt: "2024-01-01T00:00:00Z"}
	row := EncodeProject(p)
	cells := make([]string, len(row))
	for i, v := range row {
		cells[i] = v.(string)
	}
	assert.Equal(t, p, DecodeProject(cells))
}

func TestDecodeUsersSkipsBlankRowsAndDefaultsRole(t *testing.T) {
	users := DecodeUsers([][]string{UserHeaders, {"a@x.com", "hash"}, {}, {"b@x.com", "hash", "Admin"}})
	require.Len(t, users, 2)
	assert.Equal(t, models.RoleMember, users[0].Role)
	assert.Equal(t, models.RoleAdmin, users[1].Role)
}
