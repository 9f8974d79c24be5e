package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"antex_parser/internal/aggregate"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for the antenna catalogue.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// Pool returns the underlying connection pool.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS antenna_catalogue (
		antenna_type    TEXT NOT NULL,
		serial          TEXT NOT NULL DEFAULT '',
		sinex_code      TEXT,
		num_bands       INTEGER NOT NULL,
		systems         TEXT[] NOT NULL,
		max_abs_mm      DOUBLE PRECISION NOT NULL,
		gps_antennas    INTEGER,
		glo_antennas    INTEGER,
		summary         JSONB NOT NULL,
		source          TEXT,
		load_count      INTEGER NOT NULL DEFAULT 1,
		first_seen      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (antenna_type, serial)
	);

	CREATE INDEX IF NOT EXISTS idx_catalogue_max_abs ON antenna_catalogue(max_abs_mm);
	`
	_, err := d.pool.Exec(ctx, schema)
	return err
}

// CatalogueEntry is one row of antenna_catalogue.
type CatalogueEntry struct {
	AntennaType string             `json:"type"`
	Serial      string             `json:"serial,omitempty"`
	SinexCode   string             `json:"sinex_code,omitempty"`
	NumBands    int                `json:"num_bands"`
	Systems     []string           `json:"systems"`
	MaxAbs      float64            `json:"max_abs_mm"`
	GPSAntennas *int               `json:"gps_antennas,omitempty"`
	GLOAntennas *int               `json:"glo_antennas,omitempty"`
	Summary     *aggregate.Summary `json:"summary"`
	Source      string             `json:"source,omitempty"`
	LoadCount   int                `json:"load_count"`
	FirstSeen   time.Time          `json:"first_seen"`
	LastSeen    time.Time          `json:"last_seen"`
}

// UpsertCatalogue records the latest summary for (type, serial). A repeat
// load replaces the summary and bumps load_count.
func (d *PostgresDB) UpsertCatalogue(ctx context.Context, sum *aggregate.Summary, sinexCode, source string) error {
	enc, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = d.pool.Exec(ctx, `
		INSERT INTO antenna_catalogue (antenna_type, serial, sinex_code, num_bands, systems, max_abs_mm,
			gps_antennas, glo_antennas, summary, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (antenna_type, serial) DO UPDATE SET
			sinex_code = COALESCE(EXCLUDED.sinex_code, antenna_catalogue.sinex_code),
			num_bands = EXCLUDED.num_bands,
			systems = EXCLUDED.systems,
			max_abs_mm = EXCLUDED.max_abs_mm,
			gps_antennas = COALESCE(EXCLUDED.gps_antennas, antenna_catalogue.gps_antennas),
			glo_antennas = COALESCE(EXCLUDED.glo_antennas, antenna_catalogue.glo_antennas),
			summary = EXCLUDED.summary,
			source = EXCLUDED.source,
			load_count = antenna_catalogue.load_count + 1,
			last_seen = NOW()
	`, sum.Type, sum.Serial, nullString(sinexCode), len(sum.Bands), summarySystems(sum), sum.MaxAbs,
		sum.GPSAntennas, sum.GLOAntennas, enc, source)
	if err != nil {
		return fmt.Errorf("upsert catalogue %q: %w", sum.Type, err)
	}
	return nil
}

// GetCatalogueEntry returns the entry for (type, serial), or nil, nil.
func (d *PostgresDB) GetCatalogueEntry(ctx context.Context, antennaType, serial string) (*CatalogueEntry, error) {
	var e CatalogueEntry
	var sinex, source *string
	var enc []byte
	err := d.pool.QueryRow(ctx, `
		SELECT antenna_type, serial, sinex_code, num_bands, systems, max_abs_mm,
			gps_antennas, glo_antennas, summary, source, load_count, first_seen, last_seen
		FROM antenna_catalogue WHERE antenna_type = $1 AND serial = $2
	`, antennaType, serial).Scan(&e.AntennaType, &e.Serial, &sinex, &e.NumBands, &e.Systems, &e.MaxAbs,
		&e.GPSAntennas, &e.GLOAntennas, &enc, &source, &e.LoadCount, &e.FirstSeen, &e.LastSeen)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sinex != nil {
		e.SinexCode = *sinex
	}
	if source != nil {
		e.Source = *source
	}
	e.Summary = &aggregate.Summary{}
	if err := json.Unmarshal(enc, e.Summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &e, nil
}

// ListCatalogue returns entries whose max |PCV| reaches minMaxAbs, largest first.
func (d *PostgresDB) ListCatalogue(ctx context.Context, minMaxAbs float64) ([]CatalogueEntry, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT antenna_type, serial, num_bands, systems, max_abs_mm, load_count, last_seen
		FROM antenna_catalogue
		WHERE max_abs_mm >= $1
		ORDER BY max_abs_mm DESC, antenna_type
	`, minMaxAbs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CatalogueEntry
	for rows.Next() {
		var e CatalogueEntry
		if err := rows.Scan(&e.AntennaType, &e.Serial, &e.NumBands, &e.Systems, &e.MaxAbs, &e.LoadCount, &e.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// summarySystems lists the systems present in sum, sorted.
func summarySystems(sum *aggregate.Summary) []string {
	out := make([]string, 0, len(sum.BandsPerSystem))
	for sys := range sum.BandsPerSystem {
		out = append(out, sys.String())
	}
	sort.Strings(out)
	return out
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
