package main

import (
	"context"
	"os"

	"github.com/spf13/pflag"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/report"
)

func runSummary(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("summary", pflag.ExitOnError)
	var common commonFlags
	common.register(fs)
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	_ = fs.Parse(args)

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	p, err := readInput(ctx, common.input, cfg)
	if err != nil {
		return err
	}
	sums, err := aggregate.SummarizeAll(ctx, p.cals, cfg.Reader.Workers)
	if err != nil {
		return err
	}

	rows := make([]report.Row, len(sums))
	for i, s := range sums {
		rows[i] = report.NewRow(s)
	}
	if err := report.WriteTable(os.Stdout, rows); err != nil {
		return err
	}
	if *showStats {
		printStats(os.Stderr, p.stats)
	}
	return nil
}
