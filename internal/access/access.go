// Package access decides who may touch a project's tasks.
package access

import (
	"strings"

	"sheetboard/internal/models"
)

// CanAccess reports whether p may read or update the tasks of project.
// Admins may access every project, everyone else only the ones they created.
func CanAccess(p models.Principal, project models.Project) bool {
	if p.IsAdmin() {
		return true
	}
	return p.Email != "" && strings.EqualFold(p.Email, project.CreatedBy)
}

// CanCreateProjects reports whether p may register new projects.
func CanCreateProjects(p models.Principal) bool {
	return p.IsAdmin()
}
