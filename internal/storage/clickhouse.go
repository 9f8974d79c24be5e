package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"antex_parser/internal/antex"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for PCV sample analytics.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	// azimuth -1 is the NOAZI row.
	q := `CREATE TABLE IF NOT EXISTS pcv_samples (
		antenna_type    LowCardinality(String),
		serial          String,
		sinex_code      LowCardinality(String),
		system          LowCardinality(String),
		band            UInt8,
		band_name       LowCardinality(String),
		rms             UInt8,
		azimuth         Float64,
		elevation       Float64,
		value_mm        Float64,
		source          String,
		loaded_at       DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree()
	ORDER BY (antenna_type, serial, system, band, rms, azimuth, elevation)`

	if err := d.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PCVSample is one row of the pcv_samples table.
type PCVSample struct {
	AntennaType string
	Serial      string
	SinexCode   string
	System      string
	Band        uint8
	BandName    string
	RMS         bool
	Azimuth     float64
	Elevation   float64
	Value       float64
}

// Samples flattens a calibration into one PCVSample per grid value,
// ordered by band, then NOAZI before ascending azimuths, then elevation.
func Samples(cal *antex.Calibration) []PCVSample {
	var out []PCVSample
	for _, b := range cal.Bands {
		out = appendGrid(out, cal, b, b.Grid, false)
		out = appendGrid(out, cal, b, b.RMSGrid, true)
	}
	return out
}

func appendGrid(out []PCVSample, cal *antex.Calibration, b *antex.FrequencyBand, grid antex.Grid, rms bool) []PCVSample {
	if len(grid) == 0 {
		return out
	}
	keys := grid.Azimuths()
	if _, ok := grid.Mean(); ok {
		keys = append([]antex.Azimuth{antex.NoAzimuth}, keys...)
	}
	for _, az := range keys {
		for _, s := range grid[az] {
			out = append(out, PCVSample{
				AntennaType: cal.Type,
				Serial:      cal.Serial,
				SinexCode:   cal.SinexCode,
				System:      b.System.String(),
				Band:        uint8(b.Band),
				BandName:    b.Name,
				RMS:         rms,
				Azimuth:     float64(az),
				Elevation:   s.Elevation,
				Value:       s.Value,
			})
		}
	}
	return out
}

// InsertCalibration stores every grid value of cal in one batch.
func (d *ClickHouseDB) InsertCalibration(ctx context.Context, cal *antex.Calibration, source string) error {
	samples := Samples(cal)
	if len(samples) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO pcv_samples (antenna_type, serial, sinex_code, system, band, band_name, rms, azimuth, elevation, value_mm, source)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, s := range samples {
		var rms uint8
		if s.RMS {
			rms = 1
		}
		err := batch.Append(s.AntennaType, s.Serial, s.SinexCode, s.System, s.Band, s.BandName, rms, s.Azimuth, s.Elevation, s.Value, source)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// TypeBias is the largest absolute PCV value seen for an antenna type.
type TypeBias struct {
	AntennaType string
	MaxAbs      float64
	Samples     uint64
}

// MaxBiasByType ranks antenna types by their largest |PCV|, excluding RMS rows.
func (d *ClickHouseDB) MaxBiasByType(ctx context.Context, limit int) ([]TypeBias, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.conn.Query(ctx, `
		SELECT antenna_type, max(abs(value_mm)) AS m, count()
		FROM pcv_samples WHERE rms = 0
		GROUP BY antenna_type ORDER BY m DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query max bias: %w", err)
	}
	defer rows.Close()

	var out []TypeBias
	for rows.Next() {
		var tb TypeBias
		if err := rows.Scan(&tb.AntennaType, &tb.MaxAbs, &tb.Samples); err != nil {
			return nil, fmt.Errorf("scan max bias: %w", err)
		}
		out = append(out, tb)
	}
	return out, rows.Err()
}

// Count returns the number of stored samples, optionally for one antenna type.
func (d *ClickHouseDB) Count(ctx context.Context, antennaType string) (uint64, error) {
	var count uint64
	var err error
	if antennaType != "" {
		row := d.conn.QueryRow(ctx, "SELECT count() FROM pcv_samples WHERE antenna_type = ?", antennaType)
		err = row.Scan(&count)
	} else {
		row := d.conn.QueryRow(ctx, "SELECT count() FROM pcv_samples")
		err = row.Scan(&count)
	}
	return count, err
}
