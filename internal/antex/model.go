package antex

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// NoAzimuth is the key of the azimuth-independent (NOAZI) row.
// It lies outside [0, 360) so it never collides with a real azimuth.
const NoAzimuth Azimuth = -1

// Azimuth keys a PCV row: either NoAzimuth or degrees in [0, 360).
type Azimuth float64

// IsMean reports whether a is the NOAZI sentinel.
func (a Azimuth) IsMean() bool { return a == NoAzimuth }

func (a Azimuth) String() string {
	if a.IsMean() {
		return "NOAZI"
	}
	return strconv.FormatFloat(float64(a), 'f', -1, 64)
}

// MarshalText lets Azimuth key JSON objects.
func (a Azimuth) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Azimuth) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "NOAZI" {
		*a = NoAzimuth
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("azimuth %q: %w", s, err)
	}
	*a = Azimuth(f)
	return nil
}

// Sample is one correction value (mm) at an elevation grid angle (degrees).
type Sample struct {
	Elevation float64 `json:"elevation"`
	Value     float64 `json:"value"`
}

// Offset is a North/East/Up phase center offset in millimetres.
type Offset struct {
	North float64 `json:"north"`
	East  float64 `json:"east"`
	Up    float64 `json:"up"`
}

// Grid maps an azimuth to its row of samples, ordered by elevation.
type Grid map[Azimuth][]Sample

// Mean returns the NOAZI row.
func (g Grid) Mean() ([]Sample, bool) {
	row, ok := g[NoAzimuth]
	return row, ok
}

// Azimuths returns the real azimuth keys in ascending order (sentinel excluded).
func (g Grid) Azimuths() []Azimuth {
	out := make([]Azimuth, 0, len(g))
	for az := range g {
		if !az.IsMean() {
			out = append(out, az)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MaxAbs returns the largest absolute value over every row.
func (g Grid) MaxAbs() float64 {
	var max float64
	for _, row := range g {
		for _, s := range row {
			max = math.Max(max, math.Abs(s.Value))
		}
	}
	return max
}

// BandKey identifies a band inside one calibration.
type BandKey struct {
	System System
	Band   int
}

func (k BandKey) String() string { return FrequencyCode(k.System, k.Band) }

// FrequencyBand holds the offset and PCV grid of one (system, band).
type FrequencyBand struct {
	System    System  `json:"system"`
	Band      int     `json:"band"`
	Name      string  `json:"name"`
	Offset    Offset  `json:"offset"`
	Grid      Grid    `json:"grid"`
	RMSOffset *Offset `json:"rms_offset,omitempty"`
	RMSGrid   Grid    `json:"rms_grid,omitempty"`
}

// Key returns the band's identity.
func (b *FrequencyBand) Key() BandKey { return BandKey{System: b.System, Band: b.Band} }

// Calibration is one START OF ANTENNA ... END OF ANTENNA block.
type Calibration struct {
	Type       string  `json:"type"`
	Serial     string  `json:"serial,omitempty"`
	DAZI       float64 `json:"dazi"`
	Zen1       float64 `json:"zen1"`
	Zen2       float64 `json:"zen2"`
	DZen       float64 `json:"dzen"`
	NumFreqs   int     `json:"num_freqs"`
	SinexCode  string  `json:"sinex_code,omitempty"`
	Method     string  `json:"method,omitempty"`
	Agency     string  `json:"agency,omitempty"`
	Individual int     `json:"individual,omitempty"`
	Date       string  `json:"date,omitempty"`
	ValidFrom  string  `json:"valid_from,omitempty"`
	ValidUntil string  `json:"valid_until,omitempty"`

	// Calibrated-antenna counts from COMMENT records; nil when absent.
	GPSAntennas *int `json:"gps_antennas,omitempty"`
	GLOAntennas *int `json:"glo_antennas,omitempty"`

	Comments []string         `json:"comments,omitempty"`
	Bands    []*FrequencyBand `json:"bands"`

	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	zenSet bool
	index  map[BandKey]*FrequencyBand
}

// Band returns the band for (sys, band), or nil.
func (c *Calibration) Band(sys System, band int) *FrequencyBand {
	if c.index == nil {
		c.reindex()
	}
	return c.index[BandKey{System: sys, Band: band}]
}

// BandsFor returns the bands of one system in appearance order.
func (c *Calibration) BandsFor(sys System) []*FrequencyBand {
	var out []*FrequencyBand
	for _, b := range c.Bands {
		if b.System == sys {
			out = append(out, b)
		}
	}
	return out
}

// ElevationCount is the number of samples per row implied by ZEN1/ZEN2/DZEN.
func (c *Calibration) ElevationCount() int {
	return elevationCount(c.Zen1, c.Zen2, c.DZen)
}

// Elevations returns the elevation grid zen1, zen1+dzen, ..., zen2.
func (c *Calibration) Elevations() []float64 {
	n := c.ElevationCount()
	out := make([]float64, n)
	for k := range out {
		out[k] = c.Zen1 + float64(k)*c.DZen
	}
	return out
}

// band returns the band for key, creating it when absent.
func (c *Calibration) band(key BandKey) *FrequencyBand {
	if b := c.Band(key.System, key.Band); b != nil {
		return b
	}
	b := &FrequencyBand{
		System: key.System,
		Band:   key.Band,
		Name:   BandName(key.System, key.Band),
	}
	c.Bands = append(c.Bands, b)
	c.index[key] = b
	return b
}

func (c *Calibration) reindex() {
	c.index = make(map[BandKey]*FrequencyBand, len(c.Bands))
	for _, b := range c.Bands {
		c.index[b.Key()] = b
	}
}

// FileHeader holds the records that precede the first antenna.
type FileHeader struct {
	Version    float64  `json:"version,omitempty"`
	System     string   `json:"system,omitempty"`
	PCVType    string   `json:"pcv_type,omitempty"`
	RefAntenna string   `json:"ref_antenna,omitempty"`
	RefSerial  string   `json:"ref_serial,omitempty"`
	Comments   []string `json:"comments,omitempty"`
}

// elevationEpsilon absorbs rounding in (zen2-zen1)/dzen.
const elevationEpsilon = 1e-9

func elevationCount(zen1, zen2, dzen float64) int {
	if dzen <= 0 || zen2 < zen1 {
		return 0
	}
	return int(math.Floor((zen2-zen1)/dzen+elevationEpsilon)) + 1
}
