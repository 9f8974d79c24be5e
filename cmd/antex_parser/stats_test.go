package main

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"

	"antex_parser/internal/antex"
	"antex_parser/internal/storage"
)

func TestWriteStatsSQLite(t *testing.T) {
	f, err := os.Open("../../internal/antex/testdata/sample.atx")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cals, err := antex.ReadAll(f, antex.Options{})
	if err != nil {
		t.Fatal(err)
	}

	sq, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer sq.Close()
	ctx := context.Background()
	for _, cal := range cals {
		if _, err := sq.SaveCalibration(ctx, cal, nil, "sample.atx"); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	db := &storage.DB{SQLite: sq}
	if err := writeStats(ctx, &buf, db, statsOptions{antennaType: "TRM59800.00     SCIS"}); err != nil {
		t.Fatalf("writeStats: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"calibrations=3 types=3 bands=6 rows=23",
		"AOAD/M_T        NONE",
		"calibration  3",
		"12345",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "clickhouse") || strings.Contains(out, "postgres") {
		t.Errorf("closed stores reported:\n%s", out)
	}
}

func TestWriteStatsNoStores(t *testing.T) {
	var buf bytes.Buffer
	if err := writeStats(context.Background(), &buf, &storage.DB{}, statsOptions{}); err == nil {
		t.Error("expected an error without stores")
	}
}
