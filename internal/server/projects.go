package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetboard/internal/apperr"
	"sheetboard/internal/projects"
)

type projectRequest struct {
	ProjectName   string `json:"projectName"`
	Description   string `json:"description"`
	LinkedSheetID string `json:"linkedSheetId"`
}

// handleListProjects returns the projects created by the session user.
func (s *Server) handleListProjects(c *gin.Context) {
	list, err := s.deps.Projects.ListForUser(c.Request.Context(), principal(c).Email)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"projects": list})
}

// handleCreateProject registers a project linked to a task spreadsheet.
func (s *Server) handleCreateProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("Project name and linked sheet ID are required"))
		return
	}

	project, err := s.deps.Projects.Create(c.Request.Context(), projects.NewProject{
		ProjectName:   req.ProjectName,
		Description:   req.Description,
		LinkedSheetID: req.LinkedSheetID,
		CreatedBy:     principal(c).Email,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"success": true, "project": project})
}
