// Package antex parses antenna calibration exchange (ANTEX) records into a
// per-system, per-band phase center model.
package antex

import "strings"

// labelColumn is the 0-based offset of the record label (column 61).
const labelColumn = 60

// RecordKind identifies a record by its label.
type RecordKind int

const (
	KindUnknown RecordKind = iota
	KindStartOfAntenna
	KindEndOfAntenna
	KindComment
	KindTypeSerial
	KindDAZI
	KindZen
	KindNumFrequencies
	KindSinexCode
	KindStartOfFrequency
	KindEndOfFrequency
	KindNorthEastUp
	KindStartOfFreqRMS
	KindEndOfFreqRMS
	KindMethod
	KindValidFrom
	KindValidUntil
	KindVersion
	KindPCVType
	KindEndOfHeader
)

var kindByLabel = map[string]RecordKind{
	"START OF ANTENNA":     KindStartOfAntenna,
	"END OF ANTENNA":       KindEndOfAntenna,
	"COMMENT":              KindComment,
	"TYPE / SERIAL NO":     KindTypeSerial,
	"DAZI":                 KindDAZI,
	"ZEN1 / ZEN2 / DZEN":   KindZen,
	"# OF FREQUENCIES":     KindNumFrequencies,
	"SINEX CODE":           KindSinexCode,
	"START OF FREQUENCY":   KindStartOfFrequency,
	"END OF FREQUENCY":     KindEndOfFrequency,
	"NORTH / EAST / UP":    KindNorthEastUp,
	"START OF FREQ RMS":    KindStartOfFreqRMS,
	"END OF FREQ RMS":      KindEndOfFreqRMS,
	"METH / BY / # / DATE": KindMethod,
	"VALID FROM":           KindValidFrom,
	"VALID UNTIL":          KindValidUntil,
	"ANTEX VERSION / SYST": KindVersion,
	"PCV TYPE / REFANT":    KindPCVType,
	"END OF HEADER":        KindEndOfHeader,
}

// String returns the record label for k, or "UNKNOWN".
func (k RecordKind) String() string {
	for label, kind := range kindByLabel {
		if kind == k {
			return label
		}
	}
	return "UNKNOWN"
}

// Label returns the text from column 61 onward of the right-trimmed line.
// The text is returned verbatim; no other normalisation is applied.
func Label(line string) string {
	line = strings.TrimRight(line, " \t\r\n")
	if len(line) <= labelColumn {
		return ""
	}
	return line[labelColumn:]
}

// Data returns the data zone (columns 1-60) of the line.
func Data(line string) string {
	line = strings.TrimRight(line, "\r\n")
	if len(line) > labelColumn {
		return line[:labelColumn]
	}
	return line
}

// Classify maps a raw line to its record kind. Labels must match exactly.
func Classify(line string) RecordKind {
	return kindByLabel[Label(line)]
}
