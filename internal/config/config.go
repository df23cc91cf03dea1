// Package config collects every setting of the server into one struct that
// is built once at start and passed to the components that need it.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sheetboard/internal/util"
)

// Storage backends.
const (
	BackendGoogle = "google"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config is the full server configuration.
type Config struct {
	Addr      string
	StaticDir string

	Backend string
	DBPath  string

	RegistrySheetID   string
	UsersSheetName    string
	ProjectsSheetName string
	TasksSheetName    string

	ServiceAccountJSON string
	ServiceAccountFile string

	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURI  string

	JWTSecret     string
	SessionTTL    time.Duration
	AdminEmails   []string
	SecureCookies bool

	LogFile  string
	LogLevel string
}

// LoadDotEnv loads variables from the given files when they exist. Variables
// already set in the environment win.
func LoadDotEnv(files ...string) error {
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	return nil
}

// Load parses args with environment fallbacks.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("sheetboard", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var cfg Config
	var admins string
	fs.StringVar(&cfg.Addr, "addr", util.EnvOrDefault("SHEETBOARD_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.StaticDir, "static", util.EnvOrDefault("SHEETBOARD_STATIC_DIR", "web/dist"), "Directory with built frontend")
	fs.StringVar(&cfg.Backend, "backend", util.EnvOrDefault("SHEETBOARD_BACKEND", BackendGoogle), "Storage backend: google, sqlite or memory")
	fs.StringVar(&cfg.DBPath, "db", util.EnvOrDefault("SHEETBOARD_DB_PATH", "data/sheetboard.db"), "Path to sqlite database file")
	fs.StringVar(&cfg.RegistrySheetID, "registry-sheet", util.EnvOrDefault("GOOGLE_SHEET_ID", ""), "Spreadsheet holding the Users and Projects sheets")
	fs.StringVar(&cfg.UsersSheetName, "users-sheet", util.EnvOrDefault("GOOGLE_SHEET_NAME_USERS", "Users"), "Sheet name of the users table")
	fs.StringVar(&cfg.ProjectsSheetName, "projects-sheet", util.EnvOrDefault("GOOGLE_SHEET_NAME_PROJECTS", "Projects"), "Sheet name of the projects table")
	fs.StringVar(&cfg.TasksSheetName, "tasks-sheet", util.EnvOrDefault("SHEETBOARD_TASKS_SHEET", "Tasks"), "Sheet name of task tables in linked spreadsheets")
	fs.StringVar(&cfg.ServiceAccountFile, "credentials", util.EnvOrDefault("GOOGLE_SERVICE_ACCOUNT_FILE", "credentials.json"), "Service account key file")
	fs.StringVar(&cfg.OAuthClientID, "oauth-client-id", util.EnvOrDefault("GOOGLE_CLIENT_ID", ""), "Google OAuth client id")
	fs.StringVar(&cfg.OAuthRedirectURI, "oauth-redirect", util.EnvOrDefault("GOOGLE_REDIRECT_URI", ""), "Google OAuth redirect URI; derived from the request when empty")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", util.EnvDurationOrDefault("SHEETBOARD_SESSION_TTL", 24*time.Hour), "Lifetime of login sessions")
	fs.BoolVar(&cfg.SecureCookies, "secure-cookies", util.EnvBoolOrDefault("SHEETBOARD_SECURE_COOKIES", false), "Mark cookies Secure even when TLS ends at a proxy")
	fs.StringVar(&admins, "admins", util.EnvOrDefault("SHEETBOARD_ADMIN_EMAILS", ""), "Comma separated emails that sign up as Admin")
	fs.StringVar(&cfg.LogFile, "log-file", util.EnvOrDefault("SHEETBOARD_LOG_FILE", ""), "Also write logs to this rotating file")
	fs.StringVar(&cfg.LogLevel, "log-level", util.EnvOrDefault("SHEETBOARD_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// Secrets are read from the environment only.
	cfg.ServiceAccountJSON = os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")
	cfg.OAuthClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.JWTSecret = os.Getenv("SHEETBOARD_JWT_SECRET")
	cfg.AdminEmails = util.SplitList(admins)

	if cfg.RegistrySheetID == "" && cfg.Backend != BackendGoogle {
		cfg.RegistrySheetID = "registry"
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendGoogle:
		if c.RegistrySheetID == "" {
			return errors.New("GOOGLE_SHEET_ID environment variable is not set")
		}
	case BackendSQLite:
		if c.DBPath == "" {
			return errors.New("sqlite backend needs a database path")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.JWTSecret == "" {
		return errors.New("SHEETBOARD_JWT_SECRET environment variable is not set")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", name)
}
