// Package report turns calibration summaries into the rows and numbers a
// presentation layer needs. It renders plain text only.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
)

// plotLadder holds the symmetric plot bounds in mm, smallest first.
var plotLadder = []float64{5, 10, 15, 20}

// PlotRange returns the smallest ladder bound covering maxAbs, or 0 when
// the value exceeds every bound and the axis should be left unbounded.
func PlotRange(maxAbs float64) float64 {
	for _, bound := range plotLadder {
		if maxAbs <= bound {
			return bound
		}
	}
	return 0
}

// Band labels.
const (
	LabelMean    = "Mean"
	LabelAzimuth = "Azimuth"
)

// BandLabel names the kind of PCV data a band carries.
func BandLabel(b aggregate.BandStats, ok bool) string {
	switch {
	case !ok:
		return ""
	case b.AzimuthResolved():
		return LabelAzimuth
	case b.HasMean:
		return LabelMean
	}
	return ""
}

// NotAvailable is printed for counts the file did not carry.
const NotAvailable = "N/A"

// Row is one line of the antenna table.
type Row struct {
	Type        string `json:"type"`
	Bands       int    `json:"bands"`
	Frequencies int    `json:"frequencies"`
	GPSAntennas string `json:"gps_antennas"`
	GLOAntennas string `json:"glo_antennas"`
	GPSBands    int    `json:"gps_bands"`
	L1          string `json:"l1"`
	L2          string `json:"l2"`
	GLOBands    int    `json:"glo_bands"`
	G1          string `json:"g1"`
	G2          string `json:"g2"`
	PlotRange   string `json:"plot_range"`
}

// NewRow builds the table row for one antenna.
func NewRow(s *aggregate.Summary) Row {
	label := func(sys antex.System, band int) string {
		return BandLabel(s.Band(sys, band))
	}
	r := Row{
		Type:        s.Type,
		Bands:       len(s.Bands),
		Frequencies: s.NumFreqs,
		GPSAntennas: count(s.GPSAntennas),
		GLOAntennas: count(s.GLOAntennas),
		GPSBands:    s.BandsPerSystem[antex.GPS],
		L1:          label(antex.GPS, 1),
		L2:          label(antex.GPS, 2),
		GLOBands:    s.BandsPerSystem[antex.GLONASS],
		G1:          label(antex.GLONASS, 1),
		G2:          label(antex.GLONASS, 2),
	}
	if pr := PlotRange(s.MaxAbs); pr > 0 {
		r.PlotRange = fmt.Sprintf("±%g", pr)
	} else {
		r.PlotRange = "auto"
	}
	return r
}

func count(n *int) string {
	if n == nil {
		return NotAvailable
	}
	return strconv.Itoa(*n)
}

var header = []string{
	"TYPE", "BANDS", "FREQS", "#GPS", "#GLO",
	"GPS", "L1", "L2", "GLO", "G1", "G2", "RANGE",
}

// WriteTable writes rows as an aligned plain-text table.
func WriteTable(w io.Writer, rows []Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.Type, r.Bands, r.Frequencies, r.GPSAntennas, r.GLOAntennas,
			r.GPSBands, dash(r.L1), dash(r.L2), r.GLOBands, dash(r.G1), dash(r.G2), r.PlotRange)
	}
	return tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

var safeNameReplacer = strings.NewReplacer(`\`, "_", "/", "_", ":", "_", " ", "_")

// SafeName makes an antenna type usable as a file name or subject token.
func SafeName(s string) string {
	return safeNameReplacer.Replace(s)
}
