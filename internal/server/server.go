package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"sheetboard/internal/apperr"
	"sheetboard/internal/auth"
	"sheetboard/internal/models"
	"sheetboard/internal/oauth"
	"sheetboard/internal/projects"
	"sheetboard/internal/storage"
	"sheetboard/internal/tasks"
	"sheetboard/internal/users"
)

// Deps are the components the handlers call into.
type Deps struct {
	Users    *users.Directory
	Projects *projects.Registry
	Tasks    *tasks.Repository
	// Sheets opens the caller's own spreadsheets for the google-sheets routes.
	Sheets     storage.TokenBackends
	TasksSheet string
	Sessions   *auth.Sessions
	OAuth      *oauth.Google
	// SecureCookies forces the Secure flag on cookies for plain HTTP
	// listeners behind a TLS proxy.
	SecureCookies bool
}

// Server provides HTTP handlers for the board backend.
type Server struct {
	engine    *gin.Engine
	deps      Deps
	logger    *slog.Logger
	staticDir string
	registry  *prometheus.Registry
	metrics   *metrics
}

// New constructs the HTTP server with routes and middleware configured.
func New(deps Deps, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.TasksSheet == "" {
		deps.TasksSheet = tasks.DefaultSheet
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz", "/metrics"))

	reg := prometheus.NewRegistry()
	srv := &Server{
		engine:    router,
		deps:      deps,
		logger:    logger,
		staticDir: staticDir,
		registry:  reg,
		metrics:   newMetrics(reg),
	}
	router.Use(srv.metrics.middleware())

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	s.engine.GET("/metrics", s.handleMetrics)

	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)
		api.POST("/signup", s.handleSignup)
		api.POST("/login", s.handleLogin)

		authed := api.Group("", auth.RequireSession(s.deps.Sessions))

		projectRoutes := authed.Group("/projects")
		{
			projectRoutes.GET("", s.handleListProjects)
			projectRoutes.POST("", auth.RequireRole("Only admins can create projects", models.RoleAdmin), s.handleCreateProject)
			projectRoutes.GET(":id/tasks", s.handleListTasks)
			projectRoutes.PUT(":id/tasks", s.handleUpdateTask)
		}

		oauthRoutes := authed.Group("/google-oauth")
		{
			oauthRoutes.GET("/auth", s.handleOAuthURL)
			oauthRoutes.POST("/callback", s.handleOAuthCallback)
		}

		sheets := authed.Group("/google-sheets")
		{
			sheets.POST("/list", s.handleListSheets)
			sheets.POST("/validate", s.handleValidateSheet)
			sheets.POST("/create-template", s.handleCreateTemplate)
		}
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// principal returns the session user. RequireSession guarantees it is set.
func principal(c *gin.Context) models.Principal {
	p, _ := auth.PrincipalFrom(c)
	return p
}

// secureCookie reports whether cookies set on this request need the Secure
// flag.
func (s *Server) secureCookie(c *gin.Context) bool {
	return s.deps.SecureCookies || c.Request.TLS != nil
}

// respondError maps err to a status and writes its client-safe message.
// Causes are logged, never sent.
func (s *Server) respondError(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": apperr.Message(err, "Internal server error")})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
