package server

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"sheetboard/internal/apperr"
	"sheetboard/internal/oauth"
	"sheetboard/internal/rowcodec"
	"sheetboard/internal/storage"
)

// stateCookie carries the OAuth state between the auth URL and the callback.
const (
	stateCookie     = "sheetboard_oauth_state"
	stateCookiePath = "/api/google-oauth"
	stateTTL        = 10 * 60
)

// requestOrigin rebuilds scheme and host as the browser saw them.
func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + c.Request.Host
}

func (s *Server) redirectURI(c *gin.Context) string {
	return s.deps.OAuth.RedirectURI(requestOrigin(c) + oauth.CallbackPath)
}

// handleOAuthURL returns the Google consent URL.
func (s *Server) handleOAuthURL(c *gin.Context) {
	state := uuid.NewString()
	u, err := s.deps.OAuth.AuthURL(s.redirectURI(c), state)
	if err != nil {
		if errors.Is(err, oauth.ErrNotConfigured) {
			s.respondError(c, apperr.Upstream(err, "Google OAuth is not configured"))
			return
		}
		s.respondError(c, apperr.Upstream(err, "Failed to build authorization URL"))
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookie, state, stateTTL, stateCookiePath, "", s.secureCookie(c), true)
	respondSuccess(c, http.StatusOK, gin.H{"authUrl": u})
}

// handleOAuthCallback exchanges an authorization code for tokens.
func (s *Server) handleOAuthCallback(c *gin.Context) {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		s.respondError(c, apperr.Invalid("Authorization code is required"))
		return
	}
	want, _ := c.Cookie(stateCookie)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(req.State)) != 1 {
		s.respondError(c, apperr.Invalid("Invalid OAuth state"))
		return
	}
	c.SetCookie(stateCookie, "", -1, stateCookiePath, "", s.secureCookie(c), true)

	tokens, err := s.deps.OAuth.Exchange(c.Request.Context(), req.Code, s.redirectURI(c))
	if err != nil {
		s.respondError(c, apperr.Upstream(err, "Failed to exchange authorization code"))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"success":      true,
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
	})
}

type sheetsRequest struct {
	AccessToken string `json:"accessToken"`
	SheetID     string `json:"sheetId"`
	Name        string `json:"name"`
}

// sheetsBackend binds the body and opens the caller's spreadsheets.
func (s *Server) sheetsBackend(c *gin.Context, req *sheetsRequest) (storage.Backend, bool) {
	if err := c.ShouldBindJSON(req); err != nil || req.AccessToken == "" {
		s.respondError(c, apperr.Invalid("Access token is required"))
		return nil, false
	}
	b, err := s.deps.Sheets.ForToken(c.Request.Context(), req.AccessToken)
	if err != nil {
		s.respondError(c, apperr.Upstream(err, "Failed to connect to Google Sheets"))
		return nil, false
	}
	return b, true
}

// handleListSheets lists the spreadsheets the token can see.
func (s *Server) handleListSheets(c *gin.Context) {
	var req sheetsRequest
	b, ok := s.sheetsBackend(c, &req)
	if !ok {
		return
	}
	list, err := b.ListSpreadsheets(c.Request.Context())
	if err != nil {
		s.respondError(c, apperr.Upstream(err, "Failed to list spreadsheets"))
		return
	}
	if list == nil {
		list = []storage.SpreadsheetInfo{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"sheets": list})
}

// handleValidateSheet checks that a spreadsheet's task sheet carries the
// required headers in order. A sheet that cannot be read is invalid.
func (s *Server) handleValidateSheet(c *gin.Context) {
	var req sheetsRequest
	b, ok := s.sheetsBackend(c, &req)
	if !ok {
		return
	}
	if req.SheetID == "" {
		s.respondError(c, apperr.Invalid("Sheet ID is required"))
		return
	}

	table := storage.TableRef{SpreadsheetID: req.SheetID, Sheet: s.deps.TasksSheet}
	header, err := b.ReadRow(c.Request.Context(), table, 1, rowcodec.TaskWidth)
	valid := err == nil && rowcodec.HasTaskHeaders(header)
	if err != nil {
		s.logger.Warn("sheet validation read failed", slog.String("sheet", table.String()), slog.String("error", err.Error()))
	}
	respondSuccess(c, http.StatusOK, gin.H{"isValid": valid, "requiredHeaders": rowcodec.RequiredTaskHeaders})
}

// handleCreateTemplate creates a spreadsheet with an empty task sheet.
func (s *Server) handleCreateTemplate(c *gin.Context) {
	var req sheetsRequest
	b, ok := s.sheetsBackend(c, &req)
	if !ok {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.respondError(c, apperr.Invalid("Project name is required"))
		return
	}

	info, err := b.CreateSpreadsheet(c.Request.Context(), name+" - Tasks", s.deps.TasksSheet, rowcodec.TaskHeaders)
	if err != nil {
		s.respondError(c, apperr.Upstream(err, "Failed to create spreadsheet"))
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"success": true, "sheet": info})
}
