package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
	"antex_parser/internal/registry"
	"antex_parser/internal/storage"
)

func loadSample(t *testing.T) []*antex.Calibration {
	t.Helper()
	f, err := os.Open("../antex/testdata/sample.atx")
	require.NoError(t, err)
	defer f.Close()
	cals, err := antex.ReadAll(f, antex.Options{})
	require.NoError(t, err)
	return cals
}

func record(cal *antex.Calibration) *registry.Record {
	return &registry.Record{Calibration: cal, Summary: aggregate.Summarize(cal), Source: "sample.atx"}
}

type fakeInserter struct{ calls []string }

func (f *fakeInserter) InsertCalibration(_ context.Context, cal *antex.Calibration, source string) error {
	f.calls = append(f.calls, cal.Type+"|"+source)
	return nil
}

type fakeUpserter struct {
	sinex []string
	err   error
}

func (f *fakeUpserter) UpsertCatalogue(_ context.Context, sum *aggregate.Summary, sinexCode, _ string) error {
	f.sinex = append(f.sinex, sinexCode)
	return f.err
}

type fakePublisher struct {
	types  []string
	closed bool
}

func (f *fakePublisher) Publish(_ context.Context, sum *aggregate.Summary, _ string) error {
	f.types = append(f.types, sum.Type)
	return nil
}

func (f *fakePublisher) Close() error { f.closed = true; return nil }

func TestFileName(t *testing.T) {
	tests := []struct {
		cal  antex.Calibration
		want string
	}{
		{antex.Calibration{Type: "AOAD/M_T        NONE"}, "AOAD_M_T________NONE.json"},
		{antex.Calibration{Type: "TRM59800.00     SCIS", Serial: "12345"}, "TRM59800.00_____SCIS_12345.json"},
		{antex.Calibration{Type: "ASH:701945"}, "ASH_701945.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(&tt.cal))
	}
}

func TestJSONDirWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewJSONDir(dir, true)
	require.NoError(t, err)

	cals := loadSample(t)
	trm := cals[2]
	require.NoError(t, sink.Write(context.Background(), record(trm)))

	data, err := os.ReadFile(filepath.Join(dir, FileName(trm)))
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "sample.atx", doc.Source)
	assert.Equal(t, trm.Type, doc.Calibration.Type)
	assert.Equal(t, trm.Serial, doc.Summary.Serial)
	assert.Len(t, doc.Calibration.Bands, len(trm.Bands))
	assert.Equal(t, 13.0, doc.Summary.MaxAbs)

	_, err = os.Stat(filepath.Join(dir, FileName(trm)+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestSinksThroughRegistry(t *testing.T) {
	db, err := storage.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	jsonSink, err := NewJSONDir(t.TempDir(), false)
	require.NoError(t, err)
	ch := &fakeInserter{}
	pg := &fakeUpserter{}
	pub := &fakePublisher{}

	reg := registry.New()
	for _, s := range []registry.Sink{NewNATS(pub), NewPostgres(pg), NewClickHouse(ch), NewSQLite(db), jsonSink} {
		require.NoError(t, reg.Register(s))
	}
	assert.Equal(t, []string{"json", "sqlite", "clickhouse", "postgres", "nats"}, reg.Names())

	ctx := context.Background()
	cals := loadSample(t)
	for _, cal := range cals {
		require.NoError(t, reg.Dispatch(ctx, record(cal)))
	}

	stats, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(cals), stats.Calibrations)

	assert.Len(t, ch.calls, len(cals))
	assert.Equal(t, cals[0].Type+"|sample.atx", ch.calls[0])
	assert.Len(t, pg.sinex, len(cals))
	assert.Len(t, pub.types, len(cals))
	assert.Equal(t, cals[2].Type, pub.types[2])

	require.NoError(t, reg.Close())
	assert.True(t, pub.closed)
}

func TestClickHouseSkipsEmptyCalibration(t *testing.T) {
	sink := NewClickHouse(&fakeInserter{})
	assert.False(t, sink.Accept(&registry.Record{Calibration: &antex.Calibration{Type: "X"}}))
	assert.False(t, sink.Accept(&registry.Record{}))
}

func TestPostgresPassesSinexCode(t *testing.T) {
	pg := &fakeUpserter{}
	sink := NewPostgres(pg)
	cal := &antex.Calibration{Type: "LEIAR25.R4      LEIT", SinexCode: "LEIAR25"}
	require.NoError(t, sink.Write(context.Background(), record(cal)))
	assert.Equal(t, []string{"LEIAR25"}, pg.sinex)

	pg.err = errors.New("down")
	assert.Error(t, sink.Write(context.Background(), record(cal)))
}
