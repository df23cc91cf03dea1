package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

// mountStatic serves the built board frontend with SPA fallback. Unknown API
// paths always answer with a JSON 404.
func (s *Server) mountStatic() {
	index := s.frontendIndex()

	s.engine.NoRoute(func(c *gin.Context) {
		if index == "" || strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.File(index)
	})
	if index == "" {
		return
	}
	s.engine.GET("/", func(c *gin.Context) { c.File(index) })

	if dir := filepath.Join(s.staticDir, "assets"); isDir(dir) {
		s.engine.StaticFS("/assets", gin.Dir(dir, false))
	}
	if favicon := filepath.Join(s.staticDir, "favicon.ico"); fileExists(favicon) {
		s.engine.StaticFile("/favicon.ico", favicon)
	}
}

// frontendIndex returns the path of index.html, or "" in API only mode.
func (s *Server) frontendIndex() string {
	if s.staticDir == "" {
		s.logger.Info("static directory not configured; API only mode")
		return ""
	}
	if !isDir(s.staticDir) {
		s.logger.Warn("static directory missing", "path", s.staticDir)
		return ""
	}
	index := filepath.Join(s.staticDir, "index.html")
	if !fileExists(index) {
		s.logger.Warn("index.html not found", "path", index)
		return ""
	}
	return index
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
