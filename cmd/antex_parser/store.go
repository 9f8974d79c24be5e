package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/config"
	"antex_parser/internal/publish"
	"antex_parser/internal/registry"
	"antex_parser/internal/sinks"
	"antex_parser/internal/storage"
)

func runStore(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("store", pflag.ExitOnError)
	var common commonFlags
	common.register(fs)
	verbose := fs.BoolP("verbose", "v", false, "Log every sink write")
	_ = fs.Parse(args)

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}

	db, err := storage.Open(ctx, cfg.StorageConfig())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.CreateSchemas(ctx); err != nil {
		return err
	}

	reg, err := buildRegistry(cfg, db)
	if err != nil {
		return err
	}
	defer func() {
		if err := reg.Close(); err != nil {
			logger.Printf("close sinks: %v", err)
		}
	}()
	if reg.Len() == 0 {
		return errors.New("no sinks enabled in config")
	}
	logger.Printf("sinks: %v", reg.Names())

	p, err := readInput(ctx, common.input, cfg)
	if err != nil {
		return err
	}
	sums, err := aggregate.SummarizeAll(ctx, p.cals, cfg.Reader.Workers)
	if err != nil {
		return err
	}

	var failed int
	for i, cal := range p.cals {
		rec := &registry.Record{Calibration: cal, Summary: sums[i], Source: p.source}
		if *verbose {
			traces, err := reg.DispatchWithTrace(ctx, rec)
			for _, t := range traces {
				logger.Printf("%s: sink=%s accepted=%t elapsed=%s err=%v", cal.Type, t.Sink, t.Accepted, t.Elapsed, t.Err)
			}
			if err != nil {
				failed++
			}
		} else if err := reg.Dispatch(ctx, rec); err != nil {
			logger.Printf("%s: %v", cal.Type, err)
			failed++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	printStats(logger.Writer(), p.stats)
	if failed > 0 {
		return fmt.Errorf("%d of %d antennas failed in at least one sink", failed, len(p.cals))
	}
	return nil
}

// buildRegistry registers a sink for every output cfg enables.
func buildRegistry(cfg config.Config, db *storage.DB) (*registry.Registry, error) {
	reg := registry.New()
	var all []registry.Sink

	if cfg.Output.JSONDir != "" {
		s, err := sinks.NewJSONDir(cfg.Output.JSONDir, true)
		if err != nil {
			return nil, err
		}
		all = append(all, s)
	}
	if db.SQLite != nil {
		all = append(all, sinks.NewSQLite(db.SQLite))
	}
	if db.CH != nil {
		all = append(all, sinks.NewClickHouse(db.CH))
	}
	if db.PG != nil {
		all = append(all, sinks.NewPostgres(db.PG))
	}
	if cfg.NATS.Enable {
		pub, err := publish.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.FlushTimeout)
		if err != nil {
			return nil, err
		}
		all = append(all, sinks.NewNATS(pub))
	}

	for _, s := range all {
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	reg.Sort()
	return reg, nil
}
