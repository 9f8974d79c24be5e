package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"antex_parser/internal/antex"
	"antex_parser/internal/report"
	"antex_parser/internal/storage"
)

// newTestStore loads the sample file into an in-memory database. The three
// antennas get ids 1, 2 and 3 in file order.
func newTestStore(t *testing.T) *storage.SQLiteDB {
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

	db, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	for _, cal := range cals {
		if _, err := db.SaveCalibration(context.Background(), cal, nil, "sample.atx"); err != nil {
			t.Fatalf("SaveCalibration: %v", err)
		}
	}
	return db
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func newTestServer(t *testing.T, cfg Config) http.Handler {
	t.Helper()
	cfg.Logger = quietLogger()
	return NewServer(newTestStore(t), cfg).Router()
}

func get(t *testing.T, h http.Handler, target string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, Config{})

	var resp map[string]any
	rec := get(t, h, "/api/v1/health", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
	if resp["calibrations"] != float64(3) {
		t.Errorf("expected 3 calibrations, got %v", resp["calibrations"])
	}
}

func TestListAntennas(t *testing.T) {
	h := newTestServer(t, Config{DefaultLimit: 2, MaxLimit: 10})

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantTypes  []string
	}{
		{"default limit", "/api/v1/antennas", http.StatusOK, []string{"TRM59800.00     SCIS", "AOAD/M_T        NONE"}},
		{"offset", "/api/v1/antennas?limit=2&offset=2", http.StatusOK, []string{"BLOCK IIA"}},
		{"exact type", "/api/v1/antennas?type=BLOCK%20IIA", http.StatusOK, []string{"BLOCK IIA"}},
		{"search", "/api/v1/antennas?search=AOAD", http.StatusOK, []string{"AOAD/M_T        NONE"}},
		{"min max abs", "/api/v1/antennas?min_max_abs=5&limit=10", http.StatusOK, []string{"TRM59800.00     SCIS"}},
		{"no match", "/api/v1/antennas?type=NOPE", http.StatusOK, []string{}},
		{"bad limit", "/api/v1/antennas?limit=abc", http.StatusBadRequest, nil},
		{"zero limit", "/api/v1/antennas?limit=0", http.StatusBadRequest, nil},
		{"negative offset", "/api/v1/antennas?offset=-1", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ListResponse
			rec := get(t, h, tt.target, &resp)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if resp.Count != len(tt.wantTypes) || len(resp.Antennas) != len(tt.wantTypes) {
				t.Fatalf("expected %d antennas, got %d", len(tt.wantTypes), resp.Count)
			}
			for i, want := range tt.wantTypes {
				if resp.Antennas[i].Type != want {
					t.Errorf("antenna %d: expected %q, got %q", i, want, resp.Antennas[i].Type)
				}
			}
		})
	}
}

func TestListAntennasCapsLimit(t *testing.T) {
	h := newTestServer(t, Config{DefaultLimit: 1, MaxLimit: 2})

	var resp ListResponse
	get(t, h, "/api/v1/antennas?limit=50", &resp)
	if resp.Limit != 2 || resp.Count != 2 {
		t.Errorf("expected limit 2 and 2 antennas, got %d/%d", resp.Limit, resp.Count)
	}
}

func TestGetAntenna(t *testing.T) {
	h := newTestServer(t, Config{})

	var sc storage.StoredCalibration
	rec := get(t, h, "/api/v1/antennas/3", &sc)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if sc.ID != 3 || sc.Calibration.Serial != "12345" {
		t.Errorf("got id %d serial %q", sc.ID, sc.Calibration.Serial)
	}
	if len(sc.Calibration.Bands) != 3 {
		t.Errorf("expected 3 bands, got %d", len(sc.Calibration.Bands))
	}

	for target, want := range map[string]int{
		"/api/v1/antennas/99":  http.StatusNotFound,
		"/api/v1/antennas/abc": http.StatusBadRequest,
		"/api/v1/antennas/0":   http.StatusBadRequest,
	} {
		if rec := get(t, h, target, nil); rec.Code != want {
			t.Errorf("%s: expected status %d, got %d", target, want, rec.Code)
		}
	}
}

func TestGetSummary(t *testing.T) {
	h := newTestServer(t, Config{})

	var resp SummaryResponse
	rec := get(t, h, "/api/v1/antennas/3/summary", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if resp.Summary.MaxAbs != 13 {
		t.Errorf("expected max abs 13, got %v", resp.Summary.MaxAbs)
	}
	if resp.Report.GPSAntennas != "10" || resp.Report.GLOAntennas != "10" {
		t.Errorf("unexpected counts %q/%q", resp.Report.GPSAntennas, resp.Report.GLOAntennas)
	}
	if resp.Report.L1 != report.LabelAzimuth || resp.Report.GPSBands != 2 || resp.Report.GLOBands != 1 {
		t.Errorf("unexpected report row %+v", resp.Report)
	}
	if resp.Report.PlotRange != "±15" {
		t.Errorf("expected plot range ±15, got %q", resp.Report.PlotRange)
	}
}

func TestGetDelta(t *testing.T) {
	h := newTestServer(t, Config{})

	var resp DeltaResponse
	rec := get(t, h, "/api/v1/antennas/3/bands/G/1/delta", &resp)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp.System != antex.GPS || resp.Name != "L1" || len(resp.Mean) != 4 {
		t.Errorf("unexpected header %v %q mean %d", resp.System, resp.Name, len(resp.Mean))
	}
	if len(resp.Deltas) != 4 {
		t.Fatalf("expected 4 azimuth rows, got %d", len(resp.Deltas))
	}
	d := resp.Deltas[1]
	if d.Azimuth != 120 {
		t.Errorf("expected azimuth 120, got %v", d.Azimuth)
	}
	want := []float64{0, -0.5, -0.5, -0.5}
	for k, s := range d.Samples {
		if s.Value != want[k] || s.Elevation != float64(30*k) {
			t.Errorf("sample %d = %+v, want %v at %d", k, s, want[k], 30*k)
		}
	}

	// Mean-only band: no deltas.
	var meanOnly DeltaResponse
	get(t, h, "/api/v1/antennas/2/bands/GPS/1/delta", &meanOnly)
	if len(meanOnly.Deltas) != 0 || len(meanOnly.Mean) != 19 {
		t.Errorf("mean-only band: %d deltas, %d mean samples", len(meanOnly.Deltas), len(meanOnly.Mean))
	}

	for target, want := range map[string]int{
		"/api/v1/antennas/3/bands/X/1/delta":  http.StatusBadRequest,
		"/api/v1/antennas/3/bands/G/xx/delta": http.StatusBadRequest,
		"/api/v1/antennas/3/bands/E/1/delta":  http.StatusNotFound,
		"/api/v1/antennas/9/bands/G/1/delta":  http.StatusNotFound,
	} {
		if rec := get(t, h, target, nil); rec.Code != want {
			t.Errorf("%s: expected status %d, got %d", target, want, rec.Code)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestServer(t, Config{
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})

	tests := []struct {
		name       string
		target     string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{name: "health is open", target: "/api/v1/health", wantStatus: http.StatusOK},
		{name: "no key", target: "/api/v1/antennas", wantStatus: http.StatusUnauthorized},
		{name: "invalid key", target: "/api/v1/antennas", apiKey: "wrong-key", keyHeader: "X-API-Key", wantStatus: http.StatusForbidden},
		{name: "valid key via X-API-Key", target: "/api/v1/antennas", apiKey: "test-key-123", keyHeader: "X-API-Key", wantStatus: http.StatusOK},
		{name: "valid key via Bearer", target: "/api/v1/antennas", apiKey: "another-key", keyHeader: "Authorization", wantStatus: http.StatusOK},
		{name: "valid key via query", target: "/api/v1/antennas?api_key=test-key-123", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.apiKey != "" {
				if tt.keyHeader == "Authorization" {
					req.Header.Set("Authorization", "Bearer "+tt.apiKey)
				} else {
					req.Header.Set(tt.keyHeader, tt.apiKey)
				}
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, Config{CORSOrigin: "https://example.org"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/antennas", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://example.org" {
		t.Errorf("unexpected origin %q", got)
	}
}

// countingStore counts GetCalibration calls and can be switched to fail.
type countingStore struct {
	Store
	gets int
	fail bool
}

func (c *countingStore) GetCalibration(ctx context.Context, id int64) (*storage.StoredCalibration, error) {
	c.gets++
	if c.fail {
		return nil, errors.New("disk on fire")
	}
	return c.Store.GetCalibration(ctx, id)
}

func TestResponseCache(t *testing.T) {
	store := &countingStore{Store: newTestStore(t)}
	srv := NewServer(store, Config{CacheTTL: time.Minute, Logger: quietLogger()})
	h := srv.Router()

	for i := 0; i < 3; i++ {
		if rec := get(t, h, "/api/v1/antennas/1", nil); rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
	}
	if store.gets != 1 {
		t.Errorf("expected one store lookup, got %d", store.gets)
	}

	// The api_key parameter does not split the cache.
	get(t, h, "/api/v1/antennas/1?api_key=x", nil)
	if store.gets != 1 {
		t.Errorf("api_key split the cache: %d lookups", store.gets)
	}

	// Errors are not cached.
	store.fail = true
	for i := 0; i < 2; i++ {
		if rec := get(t, h, "/api/v1/antennas/2", nil); rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected status 500, got %d", rec.Code)
		}
	}
	if store.gets != 3 {
		t.Errorf("expected 3 lookups, got %d", store.gets)
	}
}

func TestCacheDisabled(t *testing.T) {
	store := &countingStore{Store: newTestStore(t)}
	h := NewServer(store, Config{Logger: quietLogger()}).Router()

	get(t, h, "/api/v1/antennas/1", nil)
	get(t, h, "/api/v1/antennas/1", nil)
	if store.gets != 2 {
		t.Errorf("expected 2 lookups without cache, got %d", store.gets)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, Config{})

	get(t, h, "/api/v1/antennas/1", nil)
	get(t, h, "/api/v1/antennas/99", nil)

	rec := get(t, h, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`antex_api_requests_total{code="200",route="/api/v1/antennas/{id}"} 1`,
		`antex_api_requests_total{code="404",route="/api/v1/antennas/{id}"} 1`,
		`antex_api_request_duration_seconds_count{route="/api/v1/antennas/{id}"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}
