package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
	"antex_parser/internal/report"
	"antex_parser/internal/storage"
)

// httpError is returned by handler bodies to pick the response status.
type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) error {
	return &httpError{status: http.StatusNotFound, msg: fmt.Sprintf(format, args...)}
}

// ListResponse is the JSON response for GET /antennas.
type ListResponse struct {
	Antennas []storage.CalibrationInfo `json:"antennas"`
	Count    int                       `json:"count"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
}

// SummaryResponse is the JSON response for GET /antennas/{id}/summary.
type SummaryResponse struct {
	ID      int64              `json:"id"`
	Summary *aggregate.Summary `json:"summary"`
	Report  report.Row         `json:"report"`
}

// DeltaResponse is the JSON response for the delta endpoint.
type DeltaResponse struct {
	ID     int64             `json:"id"`
	System antex.System      `json:"system"`
	Band   int               `json:"band"`
	Name   string            `json:"name"`
	Mean   []antex.Sample    `json:"mean"`
	Deltas []aggregate.Delta `json:"deltas"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.store != nil {
		stats, err := s.store.Stats(r.Context())
		if err != nil {
			s.logger.Printf("health: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "store unavailable"})
			return
		}
		resp["calibrations"] = stats.Calibrations
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAntennas(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, func(ctx context.Context) (any, error) {
		q := r.URL.Query()
		limit, err := intParam(q.Get("limit"), s.cfg.DefaultLimit)
		if err != nil || limit <= 0 {
			return nil, badRequest("invalid limit %q", q.Get("limit"))
		}
		if limit > s.cfg.MaxLimit {
			limit = s.cfg.MaxLimit
		}
		offset, err := intParam(q.Get("offset"), 0)
		if err != nil || offset < 0 {
			return nil, badRequest("invalid offset %q", q.Get("offset"))
		}
		var minMaxAbs float64
		if v := q.Get("min_max_abs"); v != "" {
			if minMaxAbs, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, badRequest("invalid min_max_abs %q", v)
			}
		}

		infos, err := s.store.ListCalibrations(ctx, storage.ListFilter{
			Type:      q.Get("type"),
			Search:    q.Get("search"),
			MinMaxAbs: minMaxAbs,
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return nil, err
		}
		if infos == nil {
			infos = []storage.CalibrationInfo{}
		}
		return ListResponse{Antennas: infos, Count: len(infos), Limit: limit, Offset: offset}, nil
	})
}

func (s *Server) handleGetAntenna(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, func(ctx context.Context) (any, error) {
		return s.lookup(ctx, r)
	})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, func(ctx context.Context) (any, error) {
		sc, err := s.lookup(ctx, r)
		if err != nil {
			return nil, err
		}
		sum := aggregate.Summarize(sc.Calibration)
		return SummaryResponse{ID: sc.ID, Summary: sum, Report: report.NewRow(sum)}, nil
	})
}

func (s *Server) handleGetDelta(w http.ResponseWriter, r *http.Request) {
	s.cached(w, r, func(ctx context.Context) (any, error) {
		sysParam := chi.URLParam(r, "system")
		sys, ok := antex.SystemByName(sysParam)
		if !ok {
			return nil, badRequest("unknown system %q", sysParam)
		}
		bandParam := chi.URLParam(r, "band")
		bandNum, err := strconv.Atoi(bandParam)
		if err != nil || bandNum < 1 || bandNum > 99 {
			return nil, badRequest("invalid band %q", bandParam)
		}

		sc, err := s.lookup(ctx, r)
		if err != nil {
			return nil, err
		}
		band := sc.Calibration.Band(sys, bandNum)
		if band == nil {
			return nil, notFound("antenna %d has no %s band", sc.ID, antex.FrequencyCode(sys, bandNum))
		}

		deltas, err := aggregate.DeltaFromMean(band)
		if errors.Is(err, aggregate.ErrNoMeanRow) || errors.Is(err, aggregate.ErrRowMismatch) {
			return nil, &httpError{status: http.StatusUnprocessableEntity, msg: err.Error()}
		}
		if err != nil {
			return nil, err
		}
		mean, _ := band.Grid.Mean()
		return DeltaResponse{
			ID:     sc.ID,
			System: sys,
			Band:   bandNum,
			Name:   band.Name,
			Mean:   mean,
			Deltas: deltas,
		}, nil
	})
}

// lookup resolves the {id} URL parameter to a stored calibration.
func (s *Server) lookup(ctx context.Context, r *http.Request) (*storage.StoredCalibration, error) {
	idParam := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil || id <= 0 {
		return nil, badRequest("invalid id %q", idParam)
	}
	sc, err := s.store.GetCalibration(ctx, id)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, notFound("antenna %d not found", id)
	}
	return sc, nil
}

// cached serves a JSON body from the response cache or computes it with fn.
// Only successful responses are cached.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, fn func(context.Context) (any, error)) {
	key := cacheKey(r)
	if s.cache != nil {
		if body, ok := s.cache.Get(key); ok {
			s.metrics.cache.WithLabelValues("hit").Inc()
			writeBody(w, http.StatusOK, body.([]byte))
			return
		}
		s.metrics.cache.WithLabelValues("miss").Inc()
	}

	v, err := fn(r.Context())
	if err != nil {
		var he *httpError
		if errors.As(err, &he) {
			writeError(w, he.status, he.msg)
			return
		}
		s.logger.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Printf("encode %s: %v", r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	body = append(body, '\n')
	if s.cache != nil {
		s.cache.SetDefault(key, body)
	}
	writeBody(w, http.StatusOK, body)
}

// cacheKey is the path plus the query without the api_key parameter.
func cacheKey(r *http.Request) string {
	q := r.URL.Query()
	q.Del("api_key")
	if len(q) == 0 {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q.Encode()
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
