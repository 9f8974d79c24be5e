package storage

import (
	"context"
	"os"
	"testing"

	"antex_parser/internal/antex"
)

func TestSamples(t *testing.T) {
	cals := loadSample(t)

	aoad := Samples(cals[1])
	if len(aoad) != 19 {
		t.Fatalf("got %d samples, want 19", len(aoad))
	}
	for k, s := range aoad {
		if s.Azimuth != float64(antex.NoAzimuth) || s.Elevation != float64(5*k) || s.System != "GPS" || s.Band != 1 {
			t.Fatalf("sample %d = %+v", k, s)
		}
	}

	trm := Samples(cals[2])
	// 3 bands * 5 rows * 4 values, plus the G01 RMS grid.
	if len(trm) != 3*5*4+5*4 {
		t.Fatalf("got %d samples, want 80", len(trm))
	}
	first := trm[0]
	if first.Azimuth != -1 || first.RMS || first.BandName != "L1" {
		t.Errorf("first sample = %+v", first)
	}
	if trm[4].Azimuth != 0 || trm[8].Azimuth != 120 {
		t.Errorf("azimuth order = %v, %v", trm[4].Azimuth, trm[8].Azimuth)
	}
	if !trm[20].RMS || trm[20].Band != 1 {
		t.Errorf("RMS rows should follow G01: %+v", trm[20])
	}
	if trm[40].System != "GPS" || trm[40].Band != 2 {
		t.Errorf("second band = %+v", trm[40])
	}
	if last := trm[len(trm)-1]; last.System != "GLO" || last.Azimuth != 360 || last.Elevation != 90 {
		t.Errorf("last sample = %+v", last)
	}
}

func setupTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		host = "localhost"
	}
	database := os.Getenv("CLICKHOUSE_DB")
	if database == "" {
		database = "antex"
	}

	ctx := context.Background()
	ch, err := OpenClickHouse(ctx, ClickHouseConfig{
		Host:     host,
		Port:     9000,
		Database: database,
		User:     "default",
	})
	if err != nil {
		return nil
	}
	if err := ch.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		return nil
	}
	return ch
}

func TestClickHouseInsertCalibration(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()

	ctx := context.Background()
	cal := loadSample(t)[2]
	cal.Type = "TEST-ANTENNA    NONE"

	cleanup := func() {
		_ = ch.conn.Exec(ctx, "ALTER TABLE pcv_samples DELETE WHERE antenna_type = ? SETTINGS mutations_sync = 1", cal.Type)
	}
	cleanup()
	defer cleanup()

	if err := ch.InsertCalibration(ctx, cal, "test"); err != nil {
		t.Fatalf("InsertCalibration: %v", err)
	}
	n, err := ch.Count(ctx, cal.Type)
	if err != nil {
		t.Fatal(err)
	}
	if n != 80 {
		t.Errorf("Count = %d, want 80", n)
	}

	ranked, err := ch.MaxBiasByType(ctx, 1000)
	if err != nil {
		t.Fatal(err)
	}
	for _, tb := range ranked {
		if tb.AntennaType == cal.Type && tb.MaxAbs != 13 {
			t.Errorf("max bias = %v, want 13", tb.MaxAbs)
		}
	}
}
