package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/buddy/internal/catalog"
	"github.com/kalambet/buddy/internal/config"
	"github.com/kalambet/buddy/internal/conversation"
	"github.com/kalambet/buddy/internal/gateway"
	"github.com/kalambet/buddy/internal/health"
	"github.com/kalambet/buddy/internal/logging"
	"github.com/kalambet/buddy/internal/notes"
	"github.com/kalambet/buddy/internal/store"
	"github.com/kalambet/buddy/internal/upload"
	"github.com/kalambet/buddy/internal/weather"
)

// appOptions come from persistent flags.
type appOptions struct {
	env string
	// interactive sends logs to a file because the TUI owns the terminal.
	interactive bool
}

// app holds every manager for one invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *store.Store
	gw     *gateway.Client
	env    string

	session *conversation.Session
	notes   *notes.Manager
	library *upload.Library
	uploads *upload.Coordinator
	poller  *health.Poller
	catalog *catalog.Catalog
	weather *weather.Service

	closers []io.Closer
}

var newApp = func(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var logger *slog.Logger
	var closers []io.Closer
	if opts.interactive {
		l, closer, err := logging.SetupFile(cfg.Log.File, cfg.Storage.DataDir, cfg.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logger = l
		closers = append(closers, closer)
	} else {
		logger = logging.Setup(cfg.Log.Level)
	}

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	env, err := resolveEnvironment(opts.env, st, cfg.Backend.Environment, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	gw := gateway.New(cfg.Backend.BaseURL(env), cfg.Backend.TimeoutDuration())

	a := buildApp(ctx, cfg, st, gw, logger)
	a.env = env
	a.closers = append(a.closers, closers...)
	return a, nil
}

// buildApp wires the managers over an open store and client. The store is
// closed by Close.
func buildApp(ctx context.Context, cfg config.Config, st *store.Store, gw *gateway.Client, logger *slog.Logger) *app {
	session := conversation.New(gw, st,
		conversation.WithLogger(logger),
		conversation.WithContextWindow(cfg.Chat.ContextWindow),
		conversation.WithRAG(cfg.Chat.UseRAG),
	)
	session.Initialize(ctx)

	library := upload.NewLibrary(gw, logger)
	return &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		gw:      gw,
		env:     cfg.Backend.Environment,
		session: session,
		notes:   notes.NewManager(gw, logger),
		library: library,
		uploads: upload.NewCoordinator(gw, library, logger),
		poller:  health.NewPoller(gw, cfg.Health.IntervalDuration(), logger),
		catalog: catalog.New(gw, session, session.Settings().Model),
		weather: weather.NewService(gw, cfg.Weather.TTLDuration(), logger),
		closers: []io.Closer{st},
	}
}

// Close releases the store and the log file.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// resolveEnvironment picks the backend environment: the flag, then the
// stored choice, then the configured default. A bad stored value is logged
// and ignored; a bad flag is an error.
func resolveEnvironment(flag string, st *store.Store, def string, logger *slog.Logger) (string, error) {
	if flag != "" {
		if err := config.ValidateEnvironment(flag); err != nil {
			return "", fmt.Errorf("--env: %w", err)
		}
		return flag, nil
	}
	saved := st.GetOr(store.KeyEnvironment, def)
	if err := config.ValidateEnvironment(saved); err != nil {
		logger.Warn("ignoring stored environment", "value", saved)
		return def, nil
	}
	return saved, nil
}

// switchEnvironment persists env and points the client at it.
func (a *app) switchEnvironment(env string) error {
	if err := config.ValidateEnvironment(env); err != nil {
		return err
	}
	if err := a.store.Set(store.KeyEnvironment, env); err != nil {
		return fmt.Errorf("saving environment: %w", err)
	}
	a.env = env
	a.gw.SetBaseURL(a.cfg.Backend.BaseURL(env))
	a.weather.Invalidate()
	return nil
}

// warmUp loads models, documents and notes concurrently. Failures are
// logged only; each manager keeps its fallback state. Health has its own
// loop in the poller.
func (a *app) warmUp(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.catalog.Load(ctx); err != nil {
			a.logger.Warn("loading models", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.library.Refresh(ctx); err != nil {
			a.logger.Warn("loading documents", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.notes.Refresh(ctx); err != nil {
			a.logger.Warn("loading notes", "error", err)
		}
		return nil
	})
	g.Wait()
}
