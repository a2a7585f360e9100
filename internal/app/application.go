package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"classhub/internal/api"
	"classhub/internal/config"
	"classhub/internal/database"
	"classhub/internal/identity"
	"classhub/internal/orchestrator"
	"classhub/internal/registry"
	"classhub/internal/store"
	"classhub/internal/transport"
	"classhub/pkg/interfaces"
	"classhub/pkg/logger"
	"classhub/pkg/types"
	pkgdatabase "classhub/pkg/database"
)

// Application coordinates all system components. Initialization follows
// dependency order: database, registry, snapshot, transport, orchestrator,
// hub, HTTP surface.
type Application struct {
	config       *config.Config
	dbManager    *database.Manager
	registry     *registry.Registry
	snapshot     *store.Snapshot
	connector    interfaces.Connector
	orchestrator *orchestrator.Orchestrator
	hub          *transport.Hub
	httpServer   *http.Server
}

// NewApplication wires the components described by cfg.
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: cfg}

	var st interfaces.Store
	if cfg.Database.Enabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path

		dbManager, err := database.NewManager(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		app.dbManager = dbManager
		st = dbManager
	}

	app.registry = registry.NewRegistry(st)
	app.snapshot = store.New(cfg.Snapshot.Path)

	if st != nil {
		if err := app.registry.LoadActiveRooms(ctx); err != nil {
			app.close()
			return nil, fmt.Errorf("failed to load active rooms: %w", err)
		}
	} else {
		// Offline: the local snapshot stands in for the backing store.
		app.registry.Restore(app.snapshot.Load().Rooms)
	}

	if cfg.Transport.URL != "" {
		connector, err := transport.Dial(ctx, cfg.Transport.URL)
		if err != nil {
			app.close()
			return nil, fmt.Errorf("failed to connect transport: %w", err)
		}
		app.connector = connector
	}

	app.orchestrator = orchestrator.New(orchestrator.Config{
		Identity:  identity.NewManager(),
		Rooms:     app.registry,
		Connector: app.connector,
		Sink:      app.snapshot,
	})

	if app.connector != nil {
		app.hub = transport.NewHub(app.connector, app.orchestrator)
	}

	mux := http.NewServeMux()
	apiServer := api.NewServer(app.registry, st)
	mux.Handle("/health", apiServer)
	mux.Handle("/api/", apiServer)

	app.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

// Orchestrator returns the session orchestrator for callers embedding the
// application.
func (app *Application) Orchestrator() *orchestrator.Orchestrator {
	return app.orchestrator
}

// JoinRoom joins a room by code with the configured transport join timeout
// bounding the remote round trip.
func (app *Application) JoinRoom(ctx context.Context, code string) (*types.Room, error) {
	joinCtx, cancel := app.joinContext(ctx)
	defer cancel()
	return app.orchestrator.JoinRoom(joinCtx, code)
}

// Reconnect re-syncs the current room after a transport drop, under the
// same join timeout.
func (app *Application) Reconnect(ctx context.Context) error {
	joinCtx, cancel := app.joinContext(ctx)
	defer cancel()
	return app.orchestrator.Reconnect(joinCtx)
}

func (app *Application) joinContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, app.config.Transport.JoinTimeout)
}

// Start brings the hub and HTTP server up.
func (app *Application) Start(ctx context.Context) error {
	logger.Info("Starting classhub on %s", app.httpServer.Addr)

	if app.hub != nil {
		if err := app.hub.Start(ctx); err != nil {
			return fmt.Errorf("failed to start transport hub: %w", err)
		}
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		app.stopHub()
		return err
	case <-time.After(100 * time.Millisecond):
		logger.Info("classhub started")
		return nil
	case <-ctx.Done():
		app.stopHub()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP, hub, transport,
// database.
func (app *Application) Stop(ctx context.Context) error {
	logger.Info("Shutting down classhub")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error: %v", err)
	}
	app.stopHub()
	app.close()

	logger.Info("classhub shutdown complete")
	return nil
}

func (app *Application) stopHub() {
	if app.hub != nil {
		if err := app.hub.Stop(); err != nil && err != transport.ErrHubNotRunning {
			logger.Error("Hub shutdown error: %v", err)
		}
	}
}

func (app *Application) close() {
	if app.connector != nil {
		if err := app.connector.Close(); err != nil {
			logger.Error("Transport shutdown error: %v", err)
		}
	}
	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			logger.Error("Database shutdown error: %v", err)
		}
	}
}
