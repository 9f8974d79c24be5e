package storage

import (
	"context"
	"os"
	"testing"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
)

func loadSample(t *testing.T) []*antex.Calibration {
	t.Helper()
	f, err := os.Open("../antex/testdata/sample.atx")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cals, err := antex.ReadAll(f, antex.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return cals
}

func openMemory(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	cal := loadSample(t)[2]

	id, err := db.SaveCalibration(ctx, cal, nil, "sample.atx")
	if err != nil {
		t.Fatalf("SaveCalibration: %v", err)
	}

	got, err := db.GetCalibration(ctx, id)
	if err != nil {
		t.Fatalf("GetCalibration: %v", err)
	}
	if got == nil {
		t.Fatal("calibration not found")
	}
	if got.Source != "sample.atx" || got.Bands != 3 || got.MaxAbs != 13 {
		t.Errorf("info = %+v", got.CalibrationInfo)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not parsed")
	}

	rc := got.Calibration
	if rc.Type != cal.Type || rc.Serial != cal.Serial || rc.DAZI != cal.DAZI || rc.ValidFrom != cal.ValidFrom {
		t.Errorf("header = %q %q %v %q", rc.Type, rc.Serial, rc.DAZI, rc.ValidFrom)
	}
	if rc.GPSAntennas == nil || *rc.GPSAntennas != 10 || rc.GLOAntennas == nil || *rc.GLOAntennas != 10 {
		t.Errorf("counts lost")
	}
	if len(rc.Comments) != len(cal.Comments) {
		t.Errorf("comments = %q", rc.Comments)
	}
	if len(rc.Bands) != len(cal.Bands) {
		t.Fatalf("got %d bands, want %d", len(rc.Bands), len(cal.Bands))
	}
	for i, want := range cal.Bands {
		b := rc.Bands[i]
		if b.Key() != want.Key() || b.Name != want.Name || b.Offset != want.Offset {
			t.Errorf("band %d = %+v, want %+v", i, b, want)
		}
		if len(b.Grid) != len(want.Grid) {
			t.Errorf("band %v has %d rows, want %d", b.Key(), len(b.Grid), len(want.Grid))
		}
		for az, row := range want.Grid {
			gotRow := b.Grid[az]
			if len(gotRow) != len(row) {
				t.Errorf("band %v az %v: %d samples", b.Key(), az, len(gotRow))
				continue
			}
			for k := range row {
				if gotRow[k] != row[k] {
					t.Errorf("band %v az %v sample %d = %+v, want %+v", b.Key(), az, k, gotRow[k], row[k])
				}
			}
		}
	}
	g1 := rc.Band(antex.GPS, 1)
	if g1.RMSOffset == nil || *g1.RMSOffset != *cal.Band(antex.GPS, 1).RMSOffset || len(g1.RMSGrid) != 5 {
		t.Errorf("RMS data lost: %+v", g1.RMSOffset)
	}
	if rc.Band(antex.GPS, 2).RMSOffset != nil {
		t.Error("G02 gained an RMS offset")
	}

	// The reloaded calibration feeds the aggregator like a parsed one.
	if s := aggregate.Summarize(rc); s.MaxAbs != 13 || s.BandsPerSystem[antex.GLONASS] != 1 {
		t.Errorf("summary of reloaded calibration = %+v", s)
	}
}

func TestSQLiteGetMissing(t *testing.T) {
	got, err := openMemory(t).GetCalibration(context.Background(), 42)
	if err != nil || got != nil {
		t.Fatalf("GetCalibration(42) = %v, %v", got, err)
	}
}

func TestSQLiteListAndStats(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	cals := loadSample(t)
	for _, cal := range cals {
		if _, err := db.SaveCalibration(ctx, cal, aggregate.Summarize(cal), "sample.atx"); err != nil {
			t.Fatal(err)
		}
	}
	// Second load of the same antenna.
	if _, err := db.SaveCalibration(ctx, cals[1], nil, "other.atx"); err != nil {
		t.Fatal(err)
	}

	all, err := db.ListCalibrations(ctx, ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].Source != "other.atx" {
		t.Errorf("ListCalibrations = %+v", all)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   int
	}{
		{"by type", ListFilter{Type: "AOAD/M_T        NONE"}, 2},
		{"search", ListFilter{Search: "TRM"}, 1},
		{"min max abs", ListFilter{MinMaxAbs: 5}, 1},
		{"limit", ListFilter{Limit: 2}, 2},
		{"offset", ListFilter{Limit: 10, Offset: 3}, 1},
	}
	for _, tt := range tests {
		got, err := db.ListCalibrations(ctx, tt.filter)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(got) != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, len(got), tt.want)
		}
	}

	byType, err := db.CalibrationsByType(ctx, "BLOCK IIA")
	if err != nil || len(byType) != 1 || byType[0].Bands != 1 {
		t.Errorf("CalibrationsByType = %+v, %v", byType, err)
	}

	stats, err := db.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Calibrations != 4 || stats.Types != 3 || stats.Bands != 6 {
		t.Errorf("stats = %+v", stats)
	}
	// 1 + 1 + 1 rows for the mean-only bands, 3*5 + 5 RMS rows for the TRM.
	if stats.Rows != 23 || stats.BySystem["GPS"] != 5 || stats.BySystem["GLO"] != 1 {
		t.Errorf("stats = %+v", stats)
	}

	types, err := db.Types(ctx)
	if err != nil || len(types) != 3 || types[0] != "AOAD/M_T        NONE" {
		t.Errorf("Types = %q, %v", types, err)
	}
}
