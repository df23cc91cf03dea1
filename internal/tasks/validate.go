package tasks

import (
	"regexp"

	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateChanges checks a partial update before anything is written.
// An empty date string is accepted and clears the cell.
func ValidateChanges(c models.TaskChanges) error {
	if c.Empty() {
		return apperr.Invalid("At least one field to update must be provided")
	}
	if c.Progress != nil {
		p, err := c.Progress.Int64()
		if err != nil || p < 0 || p > 100 {
			return apperr.Invalid("Progress must be a number between 0 and 100")
		}
	}
	if c.DueDate != nil && *c.DueDate != "" && !datePattern.MatchString(*c.DueDate) {
		return apperr.Invalid("Due date must be in YYYY-MM-DD format")
	}
	if c.StartDate != nil && *c.StartDate != "" && !datePattern.MatchString(*c.StartDate) {
		return apperr.Invalid("Start date must be in YYYY-MM-DD format")
	}
	return nil
}
