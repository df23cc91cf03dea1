package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetboard/internal/access"
	"sheetboard/internal/apperr"
	"sheetboard/internal/models"
	"sheetboard/internal/tasks"
)

// updateTaskRequest carries the task id and token next to the changed fields.
type updateTaskRequest struct {
	TaskID      string `json:"taskId"`
	AccessToken string `json:"accessToken"`
	models.TaskChanges
}

var errMissingToken = apperr.Unauthenticated("Google OAuth token is required")

// authorizedProject loads the project and checks the session user may use it.
func (s *Server) authorizedProject(c *gin.Context) (models.Project, bool) {
	project, err := s.deps.Projects.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return models.Project{}, false
	}
	if !access.CanAccess(principal(c), project) {
		s.respondError(c, apperr.Forbidden("Forbidden"))
		return models.Project{}, false
	}
	return project, true
}

// handleListTasks returns the tasks and columns of a project's table.
func (s *Server) handleListTasks(c *gin.Context) {
	token := c.Query("accessToken")
	if token == "" {
		s.respondError(c, errMissingToken)
		return
	}
	project, ok := s.authorizedProject(c)
	if !ok {
		return
	}

	board, err := s.deps.Tasks.List(c.Request.Context(), project, token)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, board)
}

// handleUpdateTask applies a partial update to one task. Every check runs
// before the table is touched.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("Invalid request body"))
		return
	}
	if req.TaskID == "" {
		s.respondError(c, apperr.Invalid("Task ID is required"))
		return
	}
	if req.AccessToken == "" {
		s.respondError(c, errMissingToken)
		return
	}
	if err := tasks.ValidateChanges(req.TaskChanges); err != nil {
		s.respondError(c, err)
		return
	}
	project, ok := s.authorizedProject(c)
	if !ok {
		return
	}

	task, err := s.deps.Tasks.Update(c.Request.Context(), project, req.TaskID, req.TaskChanges, req.AccessToken)
	if err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"success": true, "task": task})
}
