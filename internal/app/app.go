package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq"

	"taskflow/taskflow-api/internal/audit"
	"taskflow/taskflow-api/internal/auth"
	"taskflow/taskflow-api/internal/config"
	"taskflow/taskflow-api/internal/httpserver"
	"taskflow/taskflow-api/internal/observability"
	"taskflow/taskflow-api/internal/store"
	"taskflow/taskflow-api/internal/tasks"
)

// Services is the wired domain layer shared by the HTTP server and the CLI.
type Services struct {
	Auth  *auth.Service
	Tasks *tasks.Service
	Audit *audit.Logger
	db    *sql.DB
}

// Open builds the services on Postgres when DATABASE_URL is set and on the
// local JSON file store otherwise. Sessions always live in the key-value
// store.
func Open(cfg config.Config, logger *slog.Logger, source string) (*Services, error) {
	var (
		db        *sql.DB
		kv        store.Store
		userStore auth.UserStore
		taskStore tasks.TaskStore
		err       error
	)

	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		pgKV, err := store.NewPostgresStore(db)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres kv store: %w", err)
		}
		kv = pgKV
		if userStore, err = auth.NewPostgresUserStore(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres user store: %w", err)
		}
		if taskStore, err = tasks.NewPostgresTaskStore(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create postgres task store: %w", err)
		}
		logger.Info("using postgres backend")
	} else {
		fileKV, err := store.NewFileStore(cfg.Store.File)
		if err != nil {
			return nil, fmt.Errorf("create file store: %w", err)
		}
		kv = store.WithLatency(fileKV, cfg.Store.Latency)
		if userStore, err = auth.NewCollectionUserStore(kv); err != nil {
			return nil, fmt.Errorf("create user store: %w", err)
		}
		if taskStore, err = tasks.NewCollectionTaskStore(kv); err != nil {
			return nil, fmt.Errorf("create task store: %w", err)
		}
		logger.Info("using file backend", "path", fileKV.Path(), "latency", cfg.Store.Latency)
	}

	closeDB := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	sessions, err := auth.NewCollectionSessionStore(kv)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create session store: %w", err)
	}
	authService, err := auth.NewService(userStore, auth.ServiceConfig{
		PasswordPepper: cfg.Auth.PasswordPepper,
		BcryptCost:     cfg.Auth.BcryptCost,
		Bootstrap: auth.BootstrapAccount{
			Name:     cfg.Auth.BootstrapName,
			Email:    cfg.Auth.BootstrapEmail,
			Password: cfg.Auth.BootstrapPassword,
		},
		Sessions: sessions,
		Logger:   logger,
	})
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create auth service: %w", err)
	}
	taskService, err := tasks.NewService(taskStore)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("create task service: %w", err)
	}

	return &Services{
		Auth:  authService,
		Tasks: taskService,
		Audit: audit.NewLogger(cfg.AuditLogFile, source),
		db:    db,
	}, nil
}

func (s *Services) Ready(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Services) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

type App struct {
	cfg      config.Config
	log      *slog.Logger
	services *Services
	server   *httpserver.Server
	tracing  func(context.Context) error
}

func New(cfg config.Config) (*App, error) {
	logger := observability.NewLogger(cfg.LogLevel)
	return NewWithLogger(cfg, logger)
}

func NewWithLogger(cfg config.Config, logger *slog.Logger) (*App, error) {
	shutdownTracing := observability.SetupTracing(observability.TracingConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
	}, logger)

	services, err := Open(cfg, logger, "http")
	if err != nil {
		_ = shutdownTracing(context.Background())
		return nil, err
	}

	server := httpserver.New(cfg.HTTP, httpserver.Deps{
		Auth:   services.Auth,
		Tasks:  services.Tasks,
		Audit:  services.Audit,
		Logger: logger,
		Ready:  services.Ready,
	})

	return &App{
		cfg:      cfg,
		log:      logger,
		services: services,
		server:   server,
		tracing:  shutdownTracing,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	defer func() {
		_ = a.services.Close()
		if err := a.tracing(context.Background()); err != nil {
			a.log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)

	go func() {
		a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)
		errCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
