package http

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"churn-ops-dashboard/internal/actions"
	"churn-ops-dashboard/internal/config"
	"churn-ops-dashboard/internal/connectors/churnapi"
	"churn-ops-dashboard/internal/connectors/modelmetrics"
	"churn-ops-dashboard/internal/connectors/viewstore"
	"churn-ops-dashboard/internal/connectors/warehouse"
	"churn-ops-dashboard/internal/customer"
)

// Server wraps an HTTP server and route handlers.
type Server struct {
	httpServer *nethttp.Server
	logger     *zap.Logger
	svc        services

	scrapeInterval time.Duration
	scrapeCancel   context.CancelFunc
	scrapeDone     chan struct{}
}

// services is everything the route handlers depend on. Optional integrations
// are nil when disabled.
type services struct {
	logger      *zap.Logger
	defaultPage int
	maxUpload   int64

	backend    *churnapi.Client
	source     string
	loader     *customer.Loader
	dispatcher *actions.Dispatcher
	uploader   *actions.Uploader
	assistant  *actions.Assistant

	warehouse *warehouse.Store
	views     *viewstore.Store
	scraper   *modelmetrics.Scraper
}

// NewServer creates a configured HTTP server with v1 endpoints.
func NewServer(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend := churnapi.NewClient(cfg.APIBaseURL, cfg.APITimeout)

	var wh *warehouse.Store
	if cfg.DBEnabled {
		created, err := warehouse.NewStore(cfg)
		if err != nil {
			return nil, err
		}
		wh = created
	}

	var views *viewstore.Store
	if cfg.ViewsSQLitePath != "" {
		created, err := viewstore.NewSQLiteStore(cfg.ViewsSQLitePath)
		if err != nil {
			closeQuietly(wh)
			return nil, err
		}
		views = created

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		n, err := views.SeedPresets(ctx, cfg.ViewPresetsFile)
		cancel()
		if err != nil {
			closeQuietly(wh)
			_ = views.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("seeded saved views", zap.Int("count", n), zap.String("file", cfg.ViewPresetsFile))
		}
	}

	var scraper *modelmetrics.Scraper
	if cfg.ModelMetricsEnabled {
		scraper = modelmetrics.NewScraper(cfg.ModelMetricsTargets, cfg.ModelMetricsScrapeTimeout, cfg.ModelMetricsHistoryMaxPoints)
	}

	svc := newServices(logger, cfg, backend, wh, views, scraper)
	httpServer := &nethttp.Server{
		Addr:         cfg.ListenAddr,
		Handler:      newRouter(svc),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Server{
		httpServer:     httpServer,
		logger:         logger,
		svc:            svc,
		scrapeInterval: cfg.ModelMetricsScrapeInterval,
	}, nil
}

func newServices(logger *zap.Logger, cfg config.Config, backend *churnapi.Client, wh *warehouse.Store, views *viewstore.Store, scraper *modelmetrics.Scraper) services {
	var source customer.Source = instrumentedSource{name: "backend", inner: backend}
	sourceName := config.SourceAPI
	if cfg.CustomerSource == config.SourceWarehouse && wh != nil {
		source = instrumentedSource{name: "warehouse", inner: wh, db: true}
		sourceName = config.SourceWarehouse
	}
	actionBackend := instrumentedBackend{inner: backend}

	return services{
		logger:      logger,
		defaultPage: cfg.DefaultPage,
		maxUpload:   cfg.MaxUploadBytes,
		backend:     backend,
		source:      sourceName,
		loader:      customer.NewLoader(source),
		dispatcher:  actions.NewDispatcher(actionBackend),
		uploader:    actions.NewUploader(actionBackend),
		assistant:   actions.NewAssistant(actionBackend),
		warehouse:   wh,
		views:       views,
		scraper:     scraper,
	}
}

func newRouter(svc services) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(svc.logger))
	r.Use(observabilityMiddleware)
	r.Use(chimw.Recoverer)

	r.Get("/", dashboardHandler)
	r.Get("/favicon.ico", faviconHandler)
	r.Method(nethttp.MethodGet, "/metrics", metricsHandler())
	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/metrics/app", appMetricsSummaryHandler())
		r.Get("/settings/dashboard", dashboardSettingsHandler(svc.defaultPage, svc.source))

		r.Get("/customers", customersHandler(svc.loader, svc.views, svc.defaultPage))
		r.Post("/customers/upload", uploadHandler(svc.uploader, svc.maxUpload))
		r.Get("/customers/{id}", customerDetailHandler(svc.loader))

		r.Post("/actions/{kind}", batchActionHandler(svc.dispatcher, svc.loader))
		r.Post("/chatbot/query", chatbotHandler(svc.assistant))
		r.Get("/dashboard/overview", overviewHandler(svc.backend))

		r.Get("/views", listViewsHandler(svc.views))
		r.Post("/views", saveViewHandler(svc.views))
		r.Get("/views/{id}", getViewHandler(svc.views))
		r.Delete("/views/{id}", deleteViewHandler(svc.views))

		r.Get("/model/metrics/live", modelLiveMetricsHandler(svc.scraper))
		r.Get("/charts/model-metrics", modelMetricsChartHandler(svc.scraper))

		r.Get("/status/services", servicesStatusHandler(svc.backend, svc.warehouse, svc.views, svc.scraper))
	})

	r.NotFound(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, nethttp.StatusNotFound, map[string]any{"error": "not found"})
	})
	r.MethodNotAllowed(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		writeJSON(w, nethttp.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	})
	return r
}

// ListenAndServe starts the model metrics poller, if any, and the HTTP server.
func (s *Server) ListenAndServe() error {
	if s.svc.scraper.Enabled() {
		ctx, cancel := context.WithCancel(context.Background())
		s.scrapeCancel = cancel
		s.scrapeDone = make(chan struct{})
		go func() {
			defer close(s.scrapeDone)
			s.svc.scraper.Run(ctx, s.scrapeInterval, s.logger.Named("modelmetrics"))
		}()
	}
	s.logger.Info("http server listening",
		zap.String("addr", s.httpServer.Addr),
		zap.String("backend", s.svc.backend.BaseURL()),
		zap.String("customer_source", s.svc.source),
	)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, nethttp.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server and releases every integration.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scrapeCancel != nil {
		s.scrapeCancel()
		<-s.scrapeDone
	}
	err := s.httpServer.Shutdown(ctx)

	s.svc.backend.Close()
	s.svc.scraper.Close()
	closeQuietly(s.svc.warehouse)
	if s.svc.views != nil {
		_ = s.svc.views.Close()
	}
	return err
}

func closeQuietly(wh *warehouse.Store) {
	if wh != nil {
		_ = wh.Close()
	}
}

func healthHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

func readyHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	writeJSON(w, nethttp.StatusOK, map[string]any{
		"status": "ready",
	})
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
