package antex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	fieldWidth = 8
	noAziField = "   NOAZI"
)

// GridSpec is the elevation sampling declared by ZEN1 / ZEN2 / DZEN.
type GridSpec struct {
	Zen1, Zen2, DZen float64
}

// Count returns the number of samples per row.
func (g GridSpec) Count() int { return elevationCount(g.Zen1, g.Zen2, g.DZen) }

// Elevation returns the k-th grid angle. Computed by index so long grids do
// not accumulate rounding error.
func (g GridSpec) Elevation(k int) float64 { return g.Zen1 + float64(k)*g.DZen }

// DecodeRow parses one PCV row: an 8-column azimuth field ("   NOAZI" or
// degrees) followed by one 8-column value per elevation.
func DecodeRow(line string, gs GridSpec) (Azimuth, []Sample, error) {
	if gs.DZen <= 0 {
		return 0, nil, errors.New("elevation step DZEN must be positive")
	}
	line = strings.TrimRight(line, "\r\n")
	if len(line) < fieldWidth {
		return 0, nil, fmt.Errorf("row too short for azimuth field: %q", line)
	}

	var az Azimuth
	if line[:fieldWidth] == noAziField {
		az = NoAzimuth
	} else {
		f, err := parseField(line[:fieldWidth])
		if err != nil {
			return 0, nil, fmt.Errorf("azimuth: %w", err)
		}
		// Negative azimuths would collide with NoAzimuth.
		if f < 0 || f > 360 {
			return 0, nil, fmt.Errorf("azimuth %g outside [0, 360]", f)
		}
		az = Azimuth(f)
	}

	n := gs.Count()
	samples := make([]Sample, 0, n)
	for k := 0; k < n; k++ {
		start := fieldWidth * (k + 1)
		end := start + fieldWidth
		if end > len(line) {
			return 0, nil, fmt.Errorf("row has %d of %d values", k, n)
		}
		v, err := parseField(line[start:end])
		if err != nil {
			return 0, nil, fmt.Errorf("value %d: %w", k+1, err)
		}
		samples = append(samples, Sample{Elevation: gs.Elevation(k), Value: v})
	}
	return az, samples, nil
}

// EncodeRow formats a row in the layout DecodeRow reads: the azimuth as
// "   NOAZI" or F8.1, then each value as F8.2.
func EncodeRow(az Azimuth, samples []Sample) string {
	var b strings.Builder
	b.Grow(fieldWidth * (len(samples) + 1))
	if az.IsMean() {
		b.WriteString(noAziField)
	} else {
		fmt.Fprintf(&b, "%8.1f", float64(az))
	}
	for _, s := range samples {
		fmt.Fprintf(&b, "%8.2f", s.Value)
	}
	return b.String()
}

func parseField(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, fmt.Errorf("empty field %q", s)
	}
	return strconv.ParseFloat(t, 64)
}
