package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"

	"github.com/baseball-sim/sim-engine/config"
	"github.com/baseball-sim/sim-engine/league"
	"github.com/baseball-sim/sim-engine/logger"
	"github.com/baseball-sim/sim-engine/metrics"
	"github.com/baseball-sim/sim-engine/plateappearance"
	"github.com/baseball-sim/sim-engine/simulation"
)

type Server struct {
	db          *pgxpool.Pool
	store       simulation.Store
	router      *mux.Router
	httpServer  *http.Server
	config      *config.Config
	log         *slog.Logger
	engine      *simulation.Engine
	registry    *prometheus.Registry
	metrics     *metrics.Recorder
	stopCleanup context.CancelFunc
}

func NewServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Server, error) {
	s := &Server{
		config:   cfg,
		log:      log,
		router:   mux.NewRouter(),
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.New(s.registry)

	resolver := plateappearance.Default()
	if cfg.ParamsPath != "" {
		params, err := plateappearance.LoadParams(cfg.ParamsPath)
		if err != nil {
			return nil, err
		}
		if resolver, err = plateappearance.New(params); err != nil {
			return nil, err
		}
		log.Info("loaded resolver calibration", "path", cfg.ParamsPath)
	}

	var baseline league.Rates
	if cfg.LeagueRatesPath != "" {
		rates, err := league.Load(cfg.LeagueRatesPath)
		if err != nil {
			return nil, err
		}
		baseline = rates
		log.Info("loaded league rates", "path", cfg.LeagueRatesPath)
	}

	switch cfg.Store {
	case config.StorePostgres:
		db, err := connectDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := simulation.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		s.db = db
		s.store = store
	default:
		s.store = simulation.NewMemoryStore()
	}

	s.engine = simulation.NewEngine(s.store, resolver,
		simulation.WithWorkers(cfg.Workers),
		simulation.WithDefaultPlateAppearances(cfg.SimulationRuns),
		simulation.WithMaxPlateAppearances(cfg.MaxPlateAppearances),
		simulation.WithLogger(log.With("component", "engine")),
		simulation.WithMetrics(s.metrics),
		simulation.WithLeagueBaseline(baseline),
	)

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s.stopCleanup = cancel
	s.engine.StartCleanup(cleanupCtx, time.Hour, 24*time.Hour)

	s.setupRoutes()
	return s, nil
}

func connectDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}

	// Connection pool settings
	dbConfig.MaxConns = int32(cfg.Workers * 2)
	dbConfig.MinConns = int32(cfg.Workers / 2)
	dbConfig.MaxConnLifetime = time.Hour
	dbConfig.MaxConnIdleTime = time.Minute * 30

	db, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Resolver endpoints
	s.router.HandleFunc("/probabilities", s.probabilitiesHandler).Methods("POST")
	s.router.HandleFunc("/resolve", s.resolveHandler).Methods("POST")
	s.router.HandleFunc("/params", s.paramsHandler).Methods("GET")
	s.router.HandleFunc("/league", s.leagueHandler).Methods("GET")

	// Simulation endpoints
	s.router.HandleFunc("/simulate", s.simulateHandler).Methods("POST")
	s.router.HandleFunc("/simulation/{id}/status", s.simulationStatusHandler).Methods("GET")
	s.router.HandleFunc("/simulation/{id}/result", s.simulationResultHandler).Methods("GET")

	s.router.Handle("/metrics", metrics.Handler(s.registry)).Methods("GET")

	// Apply middleware
	s.router.Use(s.metricsMiddleware)
}

// Handler wraps the router with the CORS, compression, access log and recovery middleware
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	})

	var h http.Handler = s.router
	h = handlers.CompressHandler(h)
	h = handlers.CustomLoggingHandler(io.Discard, h, s.accessLog)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)(h)
	return c.Handler(h)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Info("starting simulation engine", "port", s.config.Port, "workers", s.config.Workers, "store", s.config.Store)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down simulation engine")

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	// Stop background runs before the store goes away
	s.stopCleanup()
	s.engine.Close()

	if s.db != nil {
		s.db.Close()
	}
	return err
}

// Middleware
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a custom response writer to capture status code
		srw := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(srw, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.ObserveHTTP(r.Method, route, strconv.Itoa(srw.statusCode), time.Since(start))
	})
}

func (s *Server) accessLog(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Info("request",
		"method", p.Request.Method,
		"uri", p.URL.RequestURI(),
		"status", p.StatusCode,
		"size", p.Size,
		"duration", time.Since(p.TimeStamp),
	)
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	server, err := NewServer(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Error("server shutdown failed", "error", err)
			os.Exit(1)
		}
		log.Info("server shutdown complete")
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		log.Error("server failed to start", "error", err)
		os.Exit(1)
	}
}
