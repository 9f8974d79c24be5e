package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"antex_parser/internal/storage"
)

func runStats(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ExitOnError)
	configPath := fs.StringP("config", "c", "", "YAML config file")
	antennaType := fs.StringP("type", "t", "", "List stored calibrations of this antenna type")
	top := fs.Int("top", 10, "Antenna types to rank by max |PCV| (ClickHouse)")
	minMaxAbs := fs.Float64("min-max-abs", 0, "Catalogue entries at or above this max |PCV| (PostgreSQL)")
	dbPath := fs.String("db", "", "SQLite database (default: sqlite.path from config when enabled)")
	_ = fs.Parse(args)

	cfg, err := (&commonFlags{configPath: *configPath}).load(fs)
	if err != nil {
		return err
	}
	sc := cfg.StorageConfig()
	if *dbPath != "" {
		sc.SQLitePath = *dbPath
	}
	db, err := storage.Open(ctx, sc)
	if err != nil {
		return err
	}
	defer db.Close()

	return writeStats(ctx, os.Stdout, db, statsOptions{
		antennaType: *antennaType,
		top:         *top,
		minMaxAbs:   *minMaxAbs,
	})
}

type statsOptions struct {
	antennaType string
	top         int
	minMaxAbs   float64
}

// writeStats reports on every open store in db.
func writeStats(ctx context.Context, w io.Writer, db *storage.DB, opts statsOptions) error {
	if db.SQLite == nil && db.CH == nil && db.PG == nil {
		return fmt.Errorf("no stores enabled in config")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	if db.SQLite != nil {
		st, err := db.SQLite.Stats(ctx)
		if err != nil {
			return fmt.Errorf("sqlite stats: %w", err)
		}
		types, err := db.SQLite.Types(ctx)
		if err != nil {
			return fmt.Errorf("sqlite types: %w", err)
		}
		fmt.Fprintf(tw, "sqlite:\tcalibrations=%d types=%d bands=%d rows=%d\n", st.Calibrations, st.Types, st.Bands, st.Rows)
		systems := make([]string, 0, len(st.BySystem))
		for sys := range st.BySystem {
			systems = append(systems, sys)
		}
		sort.Strings(systems)
		for _, sys := range systems {
			fmt.Fprintf(tw, "  bands\t%s\t%d\n", sys, st.BySystem[sys])
		}
		for _, t := range types {
			fmt.Fprintf(tw, "  type\t%s\n", t)
		}

		if opts.antennaType != "" {
			infos, err := db.SQLite.CalibrationsByType(ctx, opts.antennaType)
			if err != nil {
				return fmt.Errorf("sqlite by type: %w", err)
			}
			for _, info := range infos {
				fmt.Fprintf(tw, "  calibration\t%d\t%s\t%s\tbands=%d\tmax=%.2f\n", info.ID, info.Type, info.Serial, info.Bands, info.MaxAbs)
			}
		}
	}

	if db.CH != nil {
		n, err := db.CH.Count(ctx, opts.antennaType)
		if err != nil {
			return fmt.Errorf("clickhouse count: %w", err)
		}
		ranked, err := db.CH.MaxBiasByType(ctx, opts.top)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		fmt.Fprintf(tw, "clickhouse:\tsamples=%d\n", n)
		for _, tb := range ranked {
			fmt.Fprintf(tw, "  max bias\t%s\t%.2f\t%d\n", tb.AntennaType, tb.MaxAbs, tb.Samples)
		}
	}

	if db.PG != nil {
		entries, err := db.PG.ListCatalogue(ctx, opts.minMaxAbs)
		if err != nil {
			return fmt.Errorf("postgres catalogue: %w", err)
		}
		fmt.Fprintf(tw, "postgres:\tcatalogue=%d\n", len(entries))
		for _, e := range entries {
			fmt.Fprintf(tw, "  antenna\t%s\t%s\t%.2f\tloads=%d\n", e.AntennaType, e.Serial, e.MaxAbs, e.LoadCount)
		}
	}
	return tw.Flush()
}
