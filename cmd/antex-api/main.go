// Package main provides antex-api, the query server for stored antenna
// calibrations.
//
// It serves the SQLite database written by "antex_parser store" and is
// meant for tools that need PCV grids or per-antenna summaries without
// parsing ANTEX themselves.
//
// Usage:
//
//	antex-api [options]
//
// Options:
//
//	--db PATH           SQLite database (default: antex.db, env: ANTEX_DB)
//	--addr ADDR         Listen address (default: :8080, env: ANTEX_API_ADDR)
//	--api-keys KEYS     Comma-separated API keys; enables auth (env: ANTEX_API_KEYS)
//	--cors-origin O     Access-Control-Allow-Origin (default: *, env: ANTEX_CORS_ORIGIN)
//	--cache-ttl D       Response cache TTL, 0 disables (default: 1m, env: ANTEX_CACHE_TTL)
//	--default-limit N   Default page size for /antennas (default: 100)
//	--max-limit N       Largest accepted page size (default: 1000)
//
// API Endpoints:
//
//	GET /api/v1/health
//	    Health check endpoint.
//
//	GET /api/v1/antennas?type=&search=&min_max_abs=&limit=&offset=
//	    List stored calibrations, newest first.
//
//	GET /api/v1/antennas/{id}
//	    Full calibration with every band and grid.
//
//	GET /api/v1/antennas/{id}/summary
//	    Aggregated summary and report row.
//
//	GET /api/v1/antennas/{id}/bands/{system}/{band}/delta
//	    Each azimuth row minus the NOAZI row. {system} is a letter (G) or name (GPS).
//
//	GET /metrics
//	    Prometheus metrics.
//
// Authentication:
//
//	When API keys are configured, /antennas requests must include one via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"antex_parser/internal/api"
	"antex_parser/internal/storage"
)

func main() {
	logger := log.New(os.Stderr, "[antex-api] ", log.LstdFlags)

	dbPath := pflag.String("db", envOrDefault("ANTEX_DB", "antex.db"), "SQLite database")
	addr := pflag.String("addr", envOrDefault("ANTEX_API_ADDR", ":8080"), "Listen address")
	apiKeys := pflag.String("api-keys", envOrDefault("ANTEX_API_KEYS", ""), "Comma-separated list of valid API keys")
	corsOrigin := pflag.String("cors-origin", envOrDefault("ANTEX_CORS_ORIGIN", "*"), "Access-Control-Allow-Origin value")
	cacheTTL := pflag.Duration("cache-ttl", envOrDefaultDuration("ANTEX_CACHE_TTL", time.Minute), "Response cache TTL (0 disables)")
	defaultLimit := pflag.Int("default-limit", envOrDefaultInt("ANTEX_DEFAULT_LIMIT", 100), "Default page size")
	maxLimit := pflag.Int("max-limit", envOrDefaultInt("ANTEX_MAX_LIMIT", 1000), "Maximum page size")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenSQLite(*dbPath)
	if err != nil {
		logger.Fatalf("Error opening SQLite: %v", err)
	}
	defer db.Close()

	var keys []string
	if *apiKeys != "" {
		keys = strings.Split(*apiKeys, ",")
	}

	server := api.NewServer(db, api.Config{
		AuthEnabled:  len(keys) > 0,
		APIKeys:      keys,
		CORSOrigin:   *corsOrigin,
		CacheTTL:     *cacheTTL,
		DefaultLimit: *defaultLimit,
		MaxLimit:     *maxLimit,
		Logger:       logger,
	})

	if err := server.Run(ctx, *addr); err != nil {
		logger.Printf("Server error: %v", err)
		stop()
		_ = db.Close()
		os.Exit(1)
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
