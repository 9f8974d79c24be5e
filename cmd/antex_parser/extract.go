package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
	"antex_parser/internal/registry"
	"antex_parser/internal/sinks"
)

type ExtractOut struct {
	Calibration *antex.Calibration `json:"calibration"`
	Summary     *aggregate.Summary `json:"summary"`
}

func runExtract(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("extract", pflag.ExitOnError)
	var common commonFlags
	common.register(fs)
	outPath := fs.StringP("output", "o", "", "Output JSON file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	outDir := fs.String("outdir", "", "Also write one JSON file per antenna into this directory")
	_ = fs.Parse(args)

	cfg, err := common.load(fs)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.Output.JSONDir = *outDir
	}

	p, err := readInput(ctx, common.input, cfg)
	if err != nil {
		return err
	}

	sums, err := aggregate.SummarizeAll(ctx, p.cals, cfg.Reader.Workers)
	if err != nil {
		return err
	}

	out := make([]ExtractOut, len(p.cals))
	for i := range p.cals {
		out[i] = ExtractOut{Calibration: p.cals[i], Summary: sums[i]}
	}

	if cfg.Output.JSONDir != "" {
		if err := writeDir(ctx, cfg.Output.JSONDir, *pretty, p, sums); err != nil {
			return err
		}
	}

	var wout io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		wout = f
	}

	enc, err := marshalJSON(out, *pretty)
	if err != nil {
		return fmt.Errorf("JSON encode: %w", err)
	}
	if _, err := wout.Write(append(enc, '\n')); err != nil {
		return err
	}

	if *showStats {
		printStats(os.Stderr, p.stats)
	}
	return nil
}

// writeDir runs the JSON directory sink on its own.
func writeDir(ctx context.Context, dir string, pretty bool, p *parsed, sums []*aggregate.Summary) error {
	sink, err := sinks.NewJSONDir(dir, pretty)
	if err != nil {
		return err
	}
	reg := registry.New()
	if err := reg.Register(sink); err != nil {
		return err
	}
	for i, cal := range p.cals {
		rec := &registry.Record{Calibration: cal, Summary: sums[i], Source: p.source}
		if err := reg.Dispatch(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func marshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
