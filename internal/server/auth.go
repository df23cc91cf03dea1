package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"sheetboard/internal/apperr"
	"sheetboard/internal/auth"
	"sheetboard/internal/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup registers a new account.
func (s *Server) handleSignup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Invalid("Email and password are required."))
		return
	}
	if _, err := s.deps.Users.Register(c.Request.Context(), req.Email, req.Password); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"success": true})
}

// handleLogin checks credentials and opens a session.
func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		s.respondError(c, apperr.Invalid("Email and password are required."))
		return
	}

	user, err := s.deps.Users.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	p := models.Principal{Email: user.Email, Role: user.Role}
	token, err := s.deps.Sessions.Issue(p)
	if err != nil {
		s.respondError(c, apperr.Upstream(err, "Failed to create session"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, int(s.deps.Sessions.TTL().Seconds()), "/", "", s.secureCookie(c), true)
	respondSuccess(c, http.StatusOK, gin.H{"success": true, "token": token, "user": p})
}
