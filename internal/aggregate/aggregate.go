// Package aggregate derives per-band statistics from finalized calibrations.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"antex_parser/internal/antex"
)

// BandStats describes one (system, band) of a calibration.
type BandStats struct {
	System      antex.System `json:"system"`
	Band        int          `json:"band"`
	Name        string       `json:"name"`
	AzimuthRows int          `json:"azimuth_rows"`
	HasMean     bool         `json:"has_mean"`
	Elevations  int          `json:"elevations"`

	// Largest absolute correction in mm over all rows, the mean row only,
	// and the azimuth rows only.
	MaxAbs        float64 `json:"max_abs_mm"`
	MaxAbsMean    float64 `json:"max_abs_mean_mm"`
	MaxAbsAzimuth float64 `json:"max_abs_azimuth_mm"`

	Offset antex.Offset `json:"offset"`
}

// AzimuthResolved reports whether the band carries azimuth rows.
func (b BandStats) AzimuthResolved() bool { return b.AzimuthRows > 0 }

// Summary is what the report and storage layers consume per antenna.
type Summary struct {
	Type        string `json:"type"`
	Serial      string `json:"serial,omitempty"`
	NumFreqs    int    `json:"num_freqs"`
	GPSAntennas *int   `json:"gps_antennas,omitempty"`
	GLOAntennas *int   `json:"glo_antennas,omitempty"`

	Bands          []BandStats          `json:"bands"`
	BandsPerSystem map[antex.System]int `json:"bands_per_system"`
	MaxAbs         float64              `json:"max_abs_mm"`
}

// Band returns the stats of (sys, band).
func (s *Summary) Band(sys antex.System, band int) (BandStats, bool) {
	for _, b := range s.Bands {
		if b.System == sys && b.Band == band {
			return b, true
		}
	}
	return BandStats{}, false
}

// Summarize computes the Summary of a finalized calibration.
func Summarize(cal *antex.Calibration) *Summary {
	s := &Summary{
		Type:           cal.Type,
		Serial:         cal.Serial,
		NumFreqs:       cal.NumFreqs,
		GPSAntennas:    cal.GPSAntennas,
		GLOAntennas:    cal.GLOAntennas,
		Bands:          make([]BandStats, 0, len(cal.Bands)),
		BandsPerSystem: make(map[antex.System]int),
	}
	for _, band := range cal.Bands {
		bs := summarizeBand(band)
		bs.Elevations = cal.ElevationCount()
		s.Bands = append(s.Bands, bs)
		s.BandsPerSystem[band.System]++
		s.MaxAbs = math.Max(s.MaxAbs, bs.MaxAbs)
	}
	return s
}

func summarizeBand(band *antex.FrequencyBand) BandStats {
	bs := BandStats{
		System: band.System,
		Band:   band.Band,
		Name:   band.Name,
		Offset: band.Offset,
	}
	for az, row := range band.Grid {
		m := maxAbs(row)
		if az.IsMean() {
			bs.HasMean = true
			bs.MaxAbsMean = m
		} else {
			bs.AzimuthRows++
			bs.MaxAbsAzimuth = math.Max(bs.MaxAbsAzimuth, m)
		}
		bs.MaxAbs = math.Max(bs.MaxAbs, m)
	}
	return bs
}

func maxAbs(row []antex.Sample) float64 {
	var m float64
	for _, s := range row {
		m = math.Max(m, math.Abs(s.Value))
	}
	return m
}

var (
	ErrNoMeanRow   = errors.New("band has no NOAZI row")
	ErrRowMismatch = errors.New("azimuth row length differs from NOAZI row")
)

// Delta is one azimuth row minus the NOAZI row, sample by sample.
type Delta struct {
	Azimuth antex.Azimuth  `json:"azimuth"`
	Samples []antex.Sample `json:"samples"`
}

// DeltaFromMean returns row(A)[k] - mean[k] for every azimuth row A, in
// ascending azimuth order. A band without azimuth rows yields an empty slice.
func DeltaFromMean(band *antex.FrequencyBand) ([]Delta, error) {
	mean, ok := band.Grid.Mean()
	if !ok {
		return nil, fmt.Errorf("%s: %w", band.Key(), ErrNoMeanRow)
	}

	azimuths := band.Grid.Azimuths()
	out := make([]Delta, 0, len(azimuths))
	for _, az := range azimuths {
		row := band.Grid[az]
		if len(row) != len(mean) {
			return nil, fmt.Errorf("%s azimuth %s: %d samples, NOAZI has %d: %w",
				band.Key(), az, len(row), len(mean), ErrRowMismatch)
		}
		d := Delta{Azimuth: az, Samples: make([]antex.Sample, len(row))}
		for k := range row {
			d.Samples[k] = antex.Sample{Elevation: row[k].Elevation, Value: row[k].Value - mean[k].Value}
		}
		out = append(out, d)
	}
	return out, nil
}

// SummarizeAll summarizes cals with at most workers goroutines. Results
// keep the input order.
func SummarizeAll(ctx context.Context, cals []*antex.Calibration, workers int) ([]*Summary, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]*Summary, len(cals))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cal := range cals {
		i, cal := i, cal
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Summarize(cal)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
