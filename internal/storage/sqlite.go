// Package storage persists parsed antenna calibrations.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
)

// CalibrationInfo is the listing view of a stored calibration.
type CalibrationInfo struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Serial    string    `json:"serial,omitempty"`
	SinexCode string    `json:"sinex_code,omitempty"`
	Bands     int       `json:"bands"`
	MaxAbs    float64   `json:"max_abs_mm"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredCalibration is a calibration read back from SQLite.
type StoredCalibration struct {
	CalibrationInfo
	Calibration *antex.Calibration `json:"calibration"`
}

// SQLiteDB wraps a SQLite database holding calibrations.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS calibrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		serial TEXT NOT NULL DEFAULT '',
		dazi REAL NOT NULL,
		zen1 REAL NOT NULL,
		zen2 REAL NOT NULL,
		dzen REAL NOT NULL,
		num_freqs INTEGER NOT NULL,
		sinex_code TEXT,
		method TEXT,
		agency TEXT,
		individual INTEGER,
		cal_date TEXT,
		valid_from TEXT,
		valid_until TEXT,
		gps_antennas INTEGER,
		glo_antennas INTEGER,
		comments TEXT,
		max_abs REAL NOT NULL DEFAULT 0,
		start_line INTEGER,
		end_line INTEGER,
		source TEXT,
		created_at TEXT DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_calibrations_type ON calibrations(type);
	CREATE INDEX IF NOT EXISTS idx_calibrations_max_abs ON calibrations(max_abs);

	CREATE TABLE IF NOT EXISTS bands (
		calibration_id INTEGER NOT NULL REFERENCES calibrations(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		system TEXT NOT NULL,
		band INTEGER NOT NULL,
		name TEXT NOT NULL,
		north REAL NOT NULL,
		east REAL NOT NULL,
		up REAL NOT NULL,
		rms_north REAL,
		rms_east REAL,
		rms_up REAL,
		PRIMARY KEY (calibration_id, system, band)
	);

	CREATE INDEX IF NOT EXISTS idx_bands_system ON bands(system, band);

	-- One row per azimuth; azimuth -1 is the NOAZI row. Values are a JSON
	-- array ordered by elevation.
	CREATE TABLE IF NOT EXISTS pcv_rows (
		calibration_id INTEGER NOT NULL REFERENCES calibrations(id) ON DELETE CASCADE,
		system TEXT NOT NULL,
		band INTEGER NOT NULL,
		rms INTEGER NOT NULL DEFAULT 0,
		azimuth REAL NOT NULL,
		vals TEXT NOT NULL,
		PRIMARY KEY (calibration_id, system, band, rms, azimuth)
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveCalibration stores a calibration with its bands and grid rows in one
// transaction and returns the new row ID.
func (d *SQLiteDB) SaveCalibration(ctx context.Context, cal *antex.Calibration, sum *aggregate.Summary, source string) (int64, error) {
	comments, err := json.Marshal(cal.Comments)
	if err != nil {
		return 0, fmt.Errorf("marshal comments: %w", err)
	}
	if sum == nil {
		sum = aggregate.Summarize(cal)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO calibrations (type, serial, dazi, zen1, zen2, dzen, num_freqs, sinex_code,
			method, agency, individual, cal_date, valid_from, valid_until,
			gps_antennas, glo_antennas, comments, max_abs, start_line, end_line, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cal.Type, cal.Serial, cal.DAZI, cal.Zen1, cal.Zen2, cal.DZen, cal.NumFreqs, cal.SinexCode,
		cal.Method, cal.Agency, cal.Individual, cal.Date, cal.ValidFrom, cal.ValidUntil,
		nullInt(cal.GPSAntennas), nullInt(cal.GLOAntennas), string(comments), sum.MaxAbs,
		cal.StartLine, cal.EndLine, source)
	if err != nil {
		return 0, fmt.Errorf("insert calibration: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for seq, b := range cal.Bands {
		var rmsN, rmsE, rmsU sql.NullFloat64
		if b.RMSOffset != nil {
			rmsN = sql.NullFloat64{Float64: b.RMSOffset.North, Valid: true}
			rmsE = sql.NullFloat64{Float64: b.RMSOffset.East, Valid: true}
			rmsU = sql.NullFloat64{Float64: b.RMSOffset.Up, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bands (calibration_id, seq, system, band, name, north, east, up, rms_north, rms_east, rms_up)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, seq, b.System.String(), b.Band, b.Name, b.Offset.North, b.Offset.East, b.Offset.Up, rmsN, rmsE, rmsU)
		if err != nil {
			return 0, fmt.Errorf("insert band %s: %w", b.Key(), err)
		}

		if err := insertRows(ctx, tx, id, b, b.Grid, false); err != nil {
			return 0, err
		}
		if err := insertRows(ctx, tx, id, b, b.RMSGrid, true); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func insertRows(ctx context.Context, tx *sql.Tx, id int64, b *antex.FrequencyBand, grid antex.Grid, rms bool) error {
	for az, row := range grid {
		vals := make([]float64, len(row))
		for k, s := range row {
			vals[k] = s.Value
		}
		enc, err := json.Marshal(vals)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pcv_rows (calibration_id, system, band, rms, azimuth, vals)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, b.System.String(), b.Band, boolInt(rms), float64(az), string(enc))
		if err != nil {
			return fmt.Errorf("insert row %s/%s: %w", b.Key(), az, err)
		}
	}
	return nil
}

const infoColumns = `c.id, c.type, c.serial, c.sinex_code, c.max_abs, c.source, c.created_at,
	(SELECT COUNT(*) FROM bands b WHERE b.calibration_id = c.id)`

func scanInfo(scan func(...any) error) (CalibrationInfo, error) {
	var info CalibrationInfo
	var sinex, source, created sql.NullString
	err := scan(&info.ID, &info.Type, &info.Serial, &sinex, &info.MaxAbs, &source, &created, &info.Bands)
	if err != nil {
		return info, err
	}
	info.SinexCode = sinex.String
	info.Source = source.String
	if created.Valid {
		info.CreatedAt, _ = time.Parse(time.RFC3339, created.String)
	}
	return info, nil
}

// GetCalibration reads a calibration back with all bands and rows.
// It returns nil, nil when id does not exist.
func (d *SQLiteDB) GetCalibration(ctx context.Context, id int64) (*StoredCalibration, error) {
	var (
		sc                 StoredCalibration
		cal                antex.Calibration
		method, agency     sql.NullString
		date, comments     sql.NullString
		from, until        sql.NullString
		individual         sql.NullInt64
		gpsCount, gloCount sql.NullInt64
	)
	row := d.db.QueryRowContext(ctx, `
		SELECT `+infoColumns+`, c.dazi, c.zen1, c.zen2, c.dzen, c.num_freqs,
			c.method, c.agency, c.individual, c.cal_date, c.valid_from, c.valid_until,
			c.gps_antennas, c.glo_antennas, c.comments, c.start_line, c.end_line
		FROM calibrations c WHERE c.id = ?`, id)
	info, err := scanInfo(func(dest ...any) error {
		dest = append(dest, &cal.DAZI, &cal.Zen1, &cal.Zen2, &cal.DZen, &cal.NumFreqs,
			&method, &agency, &individual, &date, &from, &until,
			&gpsCount, &gloCount, &comments, &cal.StartLine, &cal.EndLine)
		return row.Scan(dest...)
	})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get calibration %d: %w", id, err)
	}

	cal.Type = info.Type
	cal.Serial = info.Serial
	cal.SinexCode = info.SinexCode
	cal.Method = method.String
	cal.Agency = agency.String
	cal.Individual = int(individual.Int64)
	cal.Date = date.String
	cal.ValidFrom = from.String
	cal.ValidUntil = until.String
	cal.GPSAntennas = intFromNull(gpsCount)
	cal.GLOAntennas = intFromNull(gloCount)
	if comments.Valid && comments.String != "" {
		if err := json.Unmarshal([]byte(comments.String), &cal.Comments); err != nil {
			return nil, fmt.Errorf("decode comments: %w", err)
		}
	}

	if err := d.loadBands(ctx, id, &cal); err != nil {
		return nil, err
	}
	sc.CalibrationInfo = info
	sc.Calibration = &cal
	return &sc, nil
}

func (d *SQLiteDB) loadBands(ctx context.Context, id int64, cal *antex.Calibration) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT system, band, name, north, east, up, rms_north, rms_east, rms_up
		FROM bands WHERE calibration_id = ? ORDER BY seq`, id)
	if err != nil {
		return fmt.Errorf("query bands: %w", err)
	}
	for rows.Next() {
		var b antex.FrequencyBand
		var sys string
		var rn, re, ru sql.NullFloat64
		if err := rows.Scan(&sys, &b.Band, &b.Name, &b.Offset.North, &b.Offset.East, &b.Offset.Up, &rn, &re, &ru); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan band: %w", err)
		}
		if err := b.System.UnmarshalText([]byte(sys)); err != nil {
			_ = rows.Close()
			return err
		}
		if rn.Valid {
			b.RMSOffset = &antex.Offset{North: rn.Float64, East: re.Float64, Up: ru.Float64}
		}
		cal.Bands = append(cal.Bands, &b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	elev := cal.Elevations()
	rows, err = d.db.QueryContext(ctx, `
		SELECT system, band, rms, azimuth, vals
		FROM pcv_rows WHERE calibration_id = ?`, id)
	if err != nil {
		return fmt.Errorf("query rows: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var sys, enc string
		var band, rms int
		var az float64
		if err := rows.Scan(&sys, &band, &rms, &az, &enc); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		var s antex.System
		if err := s.UnmarshalText([]byte(sys)); err != nil {
			return err
		}
		b := cal.Band(s, band)
		if b == nil {
			return fmt.Errorf("row for unknown band %s", antex.FrequencyCode(s, band))
		}
		var vals []float64
		if err := json.Unmarshal([]byte(enc), &vals); err != nil {
			return fmt.Errorf("decode row: %w", err)
		}
		samples := make([]antex.Sample, len(vals))
		for k, v := range vals {
			samples[k] = antex.Sample{Value: v}
			if k < len(elev) {
				samples[k].Elevation = elev[k]
			}
		}
		grid := &b.Grid
		if rms == 1 {
			grid = &b.RMSGrid
		}
		if *grid == nil {
			*grid = antex.Grid{}
		}
		(*grid)[antex.Azimuth(az)] = samples
	}
	return rows.Err()
}

// ListFilter selects stored calibrations.
type ListFilter struct {
	Type      string  // exact antenna type
	Search    string  // substring of the antenna type
	MinMaxAbs float64 // only calibrations whose max |PCV| reaches this
	Limit     int     // default 100, negative for no limit
	Offset    int
}

// ListCalibrations returns matching calibrations, newest first.
func (d *SQLiteDB) ListCalibrations(ctx context.Context, f ListFilter) ([]CalibrationInfo, error) {
	var conditions []string
	var args []any

	if f.Type != "" {
		conditions = append(conditions, "c.type = ?")
		args = append(args, f.Type)
	}
	if f.Search != "" {
		conditions = append(conditions, "c.type LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	if f.MinMaxAbs > 0 {
		conditions = append(conditions, "c.max_abs >= ?")
		args = append(args, f.MinMaxAbs)
	}

	query := "SELECT " + infoColumns + " FROM calibrations c"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	limit := 100
	switch {
	case f.Limit > 0:
		limit = f.Limit
	case f.Limit < 0:
		limit = -1 // no limit
	}
	query += fmt.Sprintf(" ORDER BY c.id DESC LIMIT %d OFFSET %d", limit, f.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calibrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CalibrationInfo
	for rows.Next() {
		info, err := scanInfo(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// CalibrationsByType returns every stored calibration of one antenna type.
func (d *SQLiteDB) CalibrationsByType(ctx context.Context, antennaType string) ([]CalibrationInfo, error) {
	return d.ListCalibrations(ctx, ListFilter{Type: antennaType, Limit: -1})
}

// Stats summarises the database contents.
type Stats struct {
	Calibrations int            `json:"calibrations"`
	Types        int            `json:"types"`
	Bands        int            `json:"bands"`
	Rows         int            `json:"rows"`
	BySystem     map[string]int `json:"by_system"`
}

// Stats returns counts over the stored calibrations.
func (d *SQLiteDB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{BySystem: make(map[string]int)}

	row := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT type),
			(SELECT COUNT(*) FROM bands), (SELECT COUNT(*) FROM pcv_rows)
		FROM calibrations`)
	if err := row.Scan(&stats.Calibrations, &stats.Types, &stats.Bands, &stats.Rows); err != nil {
		return nil, err
	}

	rows, err := d.db.QueryContext(ctx, "SELECT system, COUNT(*) FROM bands GROUP BY system")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var sys string
		var n int
		if err := rows.Scan(&sys, &n); err != nil {
			return nil, err
		}
		stats.BySystem[sys] = n
	}
	return stats, rows.Err()
}

// Types returns the distinct stored antenna types, sorted.
func (d *SQLiteDB) Types(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT DISTINCT type FROM calibrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
