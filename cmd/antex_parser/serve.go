package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"antex_parser/internal/api"
	"antex_parser/internal/storage"
)

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ExitOnError)
	var common commonFlags
	common.register(fs)
	dbPath := fs.String("db", "", "SQLite database (default: sqlite.path from config)")
	addr := fs.String("addr", "", "Listen address (default: api.addr from config)")
	_ = fs.Parse(args)

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.SQLite.Path = *dbPath
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	db, err := storage.OpenSQLite(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	defer db.Close()

	var keys []string
	if cfg.API.APIKey != "" {
		keys = strings.Split(cfg.API.APIKey, ",")
	}
	srv := api.NewServer(db, api.Config{
		AuthEnabled:  len(keys) > 0,
		APIKeys:      keys,
		CORSOrigin:   cfg.API.CORSOrigin,
		CacheTTL:     cfg.API.CacheTTL,
		DefaultLimit: cfg.API.DefaultLimit,
		MaxLimit:     cfg.API.MaxLimit,
		Logger:       logger,
	})
	return srv.Run(ctx, cfg.API.Addr)
}
