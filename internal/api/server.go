// Package api provides REST API endpoints over stored antenna calibrations.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"antex_parser/internal/storage"
)

// Store is the read side of the calibration database. *storage.SQLiteDB
// satisfies it.
type Store interface {
	ListCalibrations(ctx context.Context, f storage.ListFilter) ([]storage.CalibrationInfo, error)
	GetCalibration(ctx context.Context, id int64) (*storage.StoredCalibration, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// Config holds configuration for the API server.
type Config struct {
	AuthEnabled  bool
	APIKeys      []string // List of valid API keys.
	CORSOrigin   string   // Defaults to "*".
	CacheTTL     time.Duration
	DefaultLimit int
	MaxLimit     int
	Logger       *log.Logger
}

// Server provides REST API access to stored calibrations.
type Server struct {
	store   Store
	cfg     Config
	apiKeys map[string]bool
	cache   *cache.Cache // nil when CacheTTL <= 0
	metrics *metrics
	logger  *log.Logger
}

// NewServer creates a new API server.
func NewServer(store Store, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = true
		}
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[api] ", log.LstdFlags)
	}

	s := &Server{
		store:   store,
		cfg:     cfg,
		apiKeys: keys,
		metrics: newMetrics(),
		logger:  logger,
	}
	if cfg.CacheTTL > 0 {
		s.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s
}

// Registry returns the Prometheus registry the server reports to.
func (s *Server) Registry() *prometheus.Registry {
	return s.metrics.registry
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.metrics.middleware)
	r.Use(s.corsMiddleware)

	r.Handle("/metrics", s.metrics.handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.AuthEnabled {
				r.Use(s.authMiddleware)
			}
			r.Get("/antennas", s.handleListAntennas)
			r.Get("/antennas/{id}", s.handleGetAntenna)
			r.Get("/antennas/{id}/summary", s.handleGetSummary)
			r.Get("/antennas/{id}/bands/{system}/{band}/delta", s.handleGetDelta)
		})
	})

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: s.logger, NoColor: true})(s.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("API starting at http://localhost%s", addr)
		if s.cfg.AuthEnabled {
			s.logger.Printf("Authentication: ENABLED (%d API keys)", len(s.apiKeys))
		} else {
			s.logger.Printf("Authentication: DISABLED (open access)")
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// corsMiddleware adds CORS headers for browser access.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Query parameter for simple testing.
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}
