// Package sinks holds the registry.Sink implementations.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
	"antex_parser/internal/registry"
	"antex_parser/internal/report"
)

// Dispatch priorities: local files first, network last.
const (
	PriorityJSON       = 10
	PrioritySQLite     = 20
	PriorityClickHouse = 30
	PriorityPostgres   = 40
	PriorityNATS       = 50
)

// Document is the JSON written per calibration.
type Document struct {
	Source      string             `json:"source,omitempty"`
	Calibration *antex.Calibration `json:"calibration"`
	Summary     *aggregate.Summary `json:"summary"`
}

// JSONDir writes one JSON document per calibration into a directory.
type JSONDir struct {
	dir    string
	pretty bool
}

// NewJSONDir creates dir if needed.
func NewJSONDir(dir string, pretty bool) (*JSONDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	return &JSONDir{dir: dir, pretty: pretty}, nil
}

func (j *JSONDir) Name() string                     { return "json" }
func (j *JSONDir) Priority() int                    { return PriorityJSON }
func (j *JSONDir) Accept(rec *registry.Record) bool { return rec.Calibration != nil }

// FileName is the document name for a calibration: the antenna type, plus
// the serial when there is one, made safe for file systems.
func FileName(cal *antex.Calibration) string {
	name := report.SafeName(cal.Type)
	if cal.Serial != "" {
		name += "_" + report.SafeName(cal.Serial)
	}
	return name + ".json"
}

func (j *JSONDir) Write(_ context.Context, rec *registry.Record) error {
	doc := Document{Source: rec.Source, Calibration: rec.Calibration, Summary: rec.Summary}
	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	path := filepath.Join(j.dir, FileName(rec.Calibration))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// CalibrationSaver is satisfied by *storage.SQLiteDB.
type CalibrationSaver interface {
	SaveCalibration(ctx context.Context, cal *antex.Calibration, sum *aggregate.Summary, source string) (int64, error)
}

// SQLite stores full calibrations.
type SQLite struct {
	db CalibrationSaver
}

func NewSQLite(db CalibrationSaver) *SQLite { return &SQLite{db: db} }

func (s *SQLite) Name() string                     { return "sqlite" }
func (s *SQLite) Priority() int                    { return PrioritySQLite }
func (s *SQLite) Accept(rec *registry.Record) bool { return rec.Calibration != nil }

func (s *SQLite) Write(ctx context.Context, rec *registry.Record) error {
	_, err := s.db.SaveCalibration(ctx, rec.Calibration, rec.Summary, rec.Source)
	return err
}

// SampleInserter is satisfied by *storage.ClickHouseDB.
type SampleInserter interface {
	InsertCalibration(ctx context.Context, cal *antex.Calibration, source string) error
}

// ClickHouse stores every PCV value as a flat sample row.
type ClickHouse struct {
	db SampleInserter
}

func NewClickHouse(db SampleInserter) *ClickHouse { return &ClickHouse{db: db} }

func (c *ClickHouse) Name() string  { return "clickhouse" }
func (c *ClickHouse) Priority() int { return PriorityClickHouse }

// Accept skips calibrations without any grid data.
func (c *ClickHouse) Accept(rec *registry.Record) bool {
	return rec.Calibration != nil && len(rec.Calibration.Bands) > 0
}

func (c *ClickHouse) Write(ctx context.Context, rec *registry.Record) error {
	return c.db.InsertCalibration(ctx, rec.Calibration, rec.Source)
}

// CatalogueUpserter is satisfied by *storage.PostgresDB.
type CatalogueUpserter interface {
	UpsertCatalogue(ctx context.Context, sum *aggregate.Summary, sinexCode, source string) error
}

// Postgres keeps the antenna catalogue current.
type Postgres struct {
	db CatalogueUpserter
}

func NewPostgres(db CatalogueUpserter) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Name() string                     { return "postgres" }
func (p *Postgres) Priority() int                    { return PriorityPostgres }
func (p *Postgres) Accept(rec *registry.Record) bool { return rec.Summary != nil }

func (p *Postgres) Write(ctx context.Context, rec *registry.Record) error {
	var sinex string
	if rec.Calibration != nil {
		sinex = rec.Calibration.SinexCode
	}
	return p.db.UpsertCatalogue(ctx, rec.Summary, sinex, rec.Source)
}

// SummaryPublisher is satisfied by *publish.Publisher.
type SummaryPublisher interface {
	Publish(ctx context.Context, sum *aggregate.Summary, source string) error
	Close() error
}

// NATS publishes each summary.
type NATS struct {
	pub SummaryPublisher
}

func NewNATS(pub SummaryPublisher) *NATS { return &NATS{pub: pub} }

func (n *NATS) Name() string                     { return "nats" }
func (n *NATS) Priority() int                    { return PriorityNATS }
func (n *NATS) Accept(rec *registry.Record) bool { return rec.Summary != nil }

func (n *NATS) Write(ctx context.Context, rec *registry.Record) error {
	return n.pub.Publish(ctx, rec.Summary, rec.Source)
}

// Close drains the NATS connection.
func (n *NATS) Close() error { return n.pub.Close() }
