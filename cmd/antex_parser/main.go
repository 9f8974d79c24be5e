// Command-line entry point for the ANTEX parser.
//
// Input is an ANTEX 1.4 antenna calibration file (for example igs20.atx).
// Satellite antennas and other generic types listed in the configuration's
// exclude list are parsed and validated but never emitted.
//
// Commands:
//
//	extract  parse and write a JSON array of {calibration, summary}
//	summary  print one table row per antenna
//	store    dispatch every antenna to the sinks enabled in the config
//	serve    run the query API over the SQLite store
//	stats    report what the configured stores hold
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"antex_parser/internal/antex"
	"antex_parser/internal/config"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "antex_parser - commands:")
	fmt.Fprintln(w, "  extract  - parse an ANTEX file and output JSON")
	fmt.Fprintln(w, "  summary  - print a per-antenna table")
	fmt.Fprintln(w, "  store    - write calibrations to the configured sinks")
	fmt.Fprintln(w, "  serve    - run the query API")
	fmt.Fprintln(w, "  stats    - report on the configured stores")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  antex_parser extract --input igs20.atx [--output out.json] [--pretty] [--stats] [--skip-invalid] [--outdir dir]")
	fmt.Fprintln(w, "  antex_parser summary --input igs20.atx")
	fmt.Fprintln(w, "  antex_parser store   --input igs20.atx --config antex.yaml [--verbose]")
	fmt.Fprintln(w, "  antex_parser serve   --config antex.yaml [--db antex.db] [--addr :8080]")
	fmt.Fprintln(w, "  antex_parser stats   --config antex.yaml [--db antex.db] [--type TYPE] [--top 10] [--min-max-abs 5]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Without --input the file is read from stdin.")
	fmt.Fprintln(w, "  - Without --config the built-in defaults apply (see config.Default).")
	fmt.Fprintln(w, "")
}

var logger = log.New(os.Stderr, "[antex_parser] ", log.LstdFlags)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "extract":
		err = runExtract(ctx, os.Args[2:])
	case "summary":
		err = runSummary(ctx, os.Args[2:])
	case "store":
		err = runStore(ctx, os.Args[2:])
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "stats":
		err = runStats(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}

	if err != nil {
		logger.Printf("%s: %v", cmd, err)
		stop()
		os.Exit(1)
	}
}

// commonFlags are shared by the commands that read an ANTEX file.
type commonFlags struct {
	input       string
	configPath  string
	skipInvalid bool
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.input, "input", "i", "", "Input ANTEX file (default: stdin)")
	fs.StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	fs.BoolVar(&c.skipInvalid, "skip-invalid", false, "Skip malformed antenna blocks instead of stopping")
}

// load reads the config, applying flag overrides.
func (c *commonFlags) load(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return cfg, err
	}
	if fs.Changed("skip-invalid") {
		cfg.Reader.SkipInvalid = c.skipInvalid
	}
	return cfg, nil
}

// parsed is the outcome of reading one ANTEX stream.
type parsed struct {
	source  string
	cals    []*antex.Calibration
	stats   antex.Stats
	skipped []*antex.ParseError
}

// readInput parses the whole input. It stops early when ctx is cancelled.
func readInput(ctx context.Context, path string, cfg config.Config) (*parsed, error) {
	var r io.Reader = os.Stdin
	source := "-"
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
		source = path
	}

	rd := antex.NewReader(r, antex.Options{
		Exclude:     cfg.Excluder(),
		SkipInvalid: cfg.Reader.SkipInvalid,
	})

	p := &parsed{source: source}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cal, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		p.cals = append(p.cals, cal)
	}
	p.stats = rd.Stats()
	p.skipped = rd.Skipped()
	for _, perr := range p.skipped {
		logger.Printf("skipped: %v", perr)
	}
	return p, nil
}

func printStats(w io.Writer, st antex.Stats) {
	fmt.Fprintf(w, "stats: lines=%d antennas=%d excluded=%d skipped=%d bands=%d\n",
		st.Lines, st.Antennas, st.Excluded, st.Skipped, st.Bands)
}
