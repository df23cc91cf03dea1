package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"sheetboard/internal/auth"
	"sheetboard/internal/config"
	"sheetboard/internal/oauth"
	"sheetboard/internal/projects"
	"sheetboard/internal/server"
	"sheetboard/internal/storage"
	"sheetboard/internal/storage/gsheets"
	"sheetboard/internal/storage/memtable"
	"sheetboard/internal/storage/sqlite"
	"sheetboard/internal/tasks"
	"sheetboard/internal/users"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := newLogger(cfg)
	logger.Info("sheetboard starting", slog.String("backend", cfg.Backend), slog.String("registry", cfg.RegistrySheetID))

	ctx := context.Background()
	service, userBackends, closeFn, err := openBackends(ctx, cfg, logger)
	if err != nil {
		logger.Error("unable to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeFn()

	sessions, err := auth.NewSessions(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		logger.Error("unable to configure sessions", slog.String("error", err.Error()))
		os.Exit(1)
	}

	deps := server.Deps{
		Users: users.NewDirectory(service,
			storage.TableRef{SpreadsheetID: cfg.RegistrySheetID, Sheet: cfg.UsersSheetName},
			cfg.AdminEmails, logger),
		Projects: projects.NewRegistry(service,
			storage.TableRef{SpreadsheetID: cfg.RegistrySheetID, Sheet: cfg.ProjectsSheetName},
			logger),
		Tasks:      tasks.NewRepository(userBackends, cfg.TasksSheetName, logger),
		Sheets:     userBackends,
		TasksSheet: cfg.TasksSheetName,
		Sessions:   sessions,
		OAuth:      oauth.NewGoogle(cfg.OAuthClientID, cfg.OAuthClientSecret, cfg.OAuthRedirectURI),

		SecureCookies: cfg.SecureCookies,
	}
	if !deps.OAuth.Configured() {
		logger.Warn("google oauth client not configured; sheet linking is disabled")
	}

	srv := server.New(deps, logger, cfg.StaticDir)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}

// newLogger writes text logs to stdout and, when configured, to a rotating
// file.
func newLogger(cfg config.Config) *slog.Logger {
	level, _ := config.ParseLevel(cfg.LogLevel)
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		})
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

// openBackends returns the backend for the registry tables and the source of
// per-user backends for task tables.
func openBackends(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage.Backend, storage.TokenBackends, func(), error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.DBPath, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := store.Close(); err != nil {
				logger.Warn("close database", slog.String("error", err.Error()))
			}
		}
		return store, storage.Static{Backend: store}, closeFn, nil
	case config.BackendMemory:
		store := memtable.New()
		return store, storage.Static{Backend: store}, func() {}, nil
	default:
		factory := gsheets.NewFactory(logger)
		var creds []byte
		if cfg.ServiceAccountJSON != "" {
			creds = []byte(cfg.ServiceAccountJSON)
		}
		service, err := factory.ServiceAccount(ctx, creds, cfg.ServiceAccountFile)
		if err != nil {
			return nil, nil, nil, err
		}
		return service, factory, func() {}, nil
	}
}
