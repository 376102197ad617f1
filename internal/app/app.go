// Package app wires configuration, services, transport, and observability
// into a runnable HTTP application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"emspulse/internal/config"
	"emspulse/internal/errors"
	"emspulse/internal/infrastructure"
	"emspulse/internal/loader"
	customMiddleware "emspulse/internal/middleware"
	"emspulse/internal/services"
	handlers "emspulse/internal/transport/http"
	ws "emspulse/internal/websocket"
)

const (
	// Version is the release version baked into health responses.
	Version = "1.0.0"
	// AppName identifies the service in startup logs.
	AppName = "EMS Pulse - Crash Records Dashboard"
)

// BuildTime is set at compile time via -ldflags.
var BuildTime = ""

// Application is the dependency container for the HTTP server.
type Application struct {
	Config         *config.Config
	Router         *chi.Mux
	Server         *http.Server
	WebSocketHub   *ws.Hub
	DatasetService *services.DatasetService
	HealthService  *services.HealthService
	Logger         *slog.Logger
	OTelProviders  *infrastructure.OTelProviders

	hubCancel context.CancelFunc
}

// NewApplication loads configuration and builds the full application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("application starting",
		slog.String("name", AppName),
		slog.String("version", Version))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.setupRouter()
	app.createServer()
	return app, nil
}

// initializeServices builds the hub, loader, and services.
func (a *Application) initializeServices() error {
	a.WebSocketHub = ws.NewHub(a.Logger)

	metrics, err := infrastructure.CreatePipelineMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	ldr := loader.New(a.Config.Loader, a.Logger)
	a.DatasetService = services.NewDatasetService(a.Config.Dataset, ldr, a.WebSocketHub, metrics, a.Logger)
	a.HealthService = services.NewHealthService(Version, BuildTime, a.DatasetService, a.WebSocketHub.ClientCount, a.Logger)
	return nil
}

// setupRouter builds the route tree. The WebSocket route gets only minimal
// middleware; the API group carries the full chain.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	r.HandleFunc("/ws", ws.ServeWS(a.WebSocketHub, a.Config.Security.AllowedOrigins, a.Logger))

	r.Group(func(r chi.Router) {
		otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
		if err != nil {
			a.Logger.Error("failed to create OpenTelemetry middleware", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}

		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)
		r.Use(customMiddleware.Compress(5))
		r.Use(customMiddleware.CORS(a.corsConfig()))

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes mounts the handlers under /api. Load endpoints run under
// the long load timeout; everything else under the read timeout.
func (a *Application) setupAPIRoutes(r chi.Router) {
	errorHandler := errors.NewErrorHandler(a.Logger, false)
	validation := customMiddleware.NewValidationMiddleware(a.Logger, errorHandler)

	datasetHandler := handlers.NewDatasetHandler(a.DatasetService, errorHandler, validation, a.Config.Loader.MaxUploadBytes, a.Logger)
	analysisHandler := handlers.NewAnalysisHandler(a.DatasetService, errorHandler, validation, a.Logger)
	auditHandler := handlers.NewAuditHandler(a.DatasetService, errorHandler, a.Logger)
	exportHandler := handlers.NewExportHandler(a.DatasetService, errorHandler, validation, a.Logger)
	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(validation.ValidateRequest)

		// Loads can fetch and parse a multi-hundred-megabyte file.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.LoadTimeout, a.Logger))
			r.Use(customMiddleware.MaxBytes(a.Config.Loader.MaxUploadBytes))
			r.Post("/dataset/upload", datasetHandler.Upload)
			r.Post("/dataset/link", datasetHandler.LoadLink)
		})

		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))
			r.Get("/dataset/summary", datasetHandler.Summary)
			r.Get("/dataset/columns", datasetHandler.Columns)
			r.Post("/dataset/preview", datasetHandler.Preview)

			r.Mount("/analysis", analysisHandler.Routes())
			r.Mount("/audit", auditHandler.Routes())
			r.Mount("/health", healthHandler.Routes())
			r.Get("/version", healthHandler.Version)
		})

		// Exports serialize a full workbook and get the write timeout.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))
			r.Mount("/export", exportHandler.Routes())
		})
	})

	r.NotFound(errorHandler.NotFound)
	r.MethodNotAllowed(errorHandler.MethodNotAllowed)
}

func (a *Application) corsConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
			"X-Requested-With",
		},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

// createServer creates the HTTP server. Only the header read is bounded
// here: request bodies can be multi-hundred-megabyte uploads and responses
// full workbooks, so the per-route-group Timeout middleware bounds handler
// time instead of server-wide read/write deadlines.
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:           a.Router,
		ReadHeaderTimeout: a.Config.Server.ReadTimeout,
		IdleTimeout:       a.Config.Server.IdleTimeout,
	}
}

// Start launches the hub and the HTTP server.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	hubCtx, hubCancel := context.WithCancel(context.Background())
	a.hubCancel = hubCancel
	go a.WebSocketHub.Run(hubCtx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the server, hub, and telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.hubCancel != nil {
		a.hubCancel()
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		return fmt.Errorf("log file close error: %w", err)
	}

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
