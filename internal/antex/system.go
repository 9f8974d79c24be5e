package antex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// System is a satellite navigation system.
type System int

const (
	GPS System = iota
	GLONASS
	Galileo
	BeiDou
	QZSS
	SBAS
	IRNSS
)

// Systems lists every recognised system in canonical order.
var Systems = []System{GPS, GLONASS, Galileo, BeiDou, QZSS, SBAS, IRNSS}

var systemLetters = [...]byte{
	GPS:     'G',
	GLONASS: 'R',
	Galileo: 'E',
	BeiDou:  'C',
	QZSS:    'J',
	SBAS:    'S',
	IRNSS:   'I',
}

var systemNames = [...]string{
	GPS:     "GPS",
	GLONASS: "GLO",
	Galileo: "GAL",
	BeiDou:  "BDS",
	QZSS:    "QZSS",
	SBAS:    "SBAS",
	IRNSS:   "IRNSS",
}

// ParseSystem maps an ANTEX system letter to a System.
func ParseSystem(letter byte) (System, bool) {
	for sys, l := range systemLetters {
		if l == letter {
			return System(sys), true
		}
	}
	return 0, false
}

// SystemByName accepts either the short name ("GPS", "GLO") or the letter ("G", "R").
func SystemByName(name string) (System, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if len(name) == 1 {
		return ParseSystem(name[0])
	}
	for sys, n := range systemNames {
		if n == name {
			return System(sys), true
		}
	}
	return 0, false
}

// Letter returns the single-letter ANTEX code.
func (s System) Letter() byte {
	if s < 0 || int(s) >= len(systemLetters) {
		return '?'
	}
	return systemLetters[s]
}

func (s System) String() string {
	if s < 0 || int(s) >= len(systemNames) {
		return fmt.Sprintf("System(%d)", int(s))
	}
	return systemNames[s]
}

// MarshalText encodes the system by its short name.
func (s System) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the short name or the letter.
func (s *System) UnmarshalText(b []byte) error {
	sys, ok := SystemByName(string(b))
	if !ok {
		return fmt.Errorf("unknown satellite system %q", b)
	}
	*s = sys
	return nil
}

var bandNames = map[System]map[int]string{
	GPS:     {1: "L1", 2: "L2", 5: "L5"},
	GLONASS: {1: "G1", 2: "G2", 3: "G3", 4: "G1a", 6: "G2a"},
	Galileo: {1: "E1", 5: "E5a", 6: "E6", 7: "E5b", 8: "E5"},
	BeiDou:  {1: "B1C", 2: "B1", 5: "B2a", 6: "B3", 7: "B2b", 8: "B2"},
	QZSS:    {1: "L1", 2: "L2", 5: "L5", 6: "L6"},
	SBAS:    {1: "L1", 5: "L5"},
	IRNSS:   {5: "L5", 9: "S"},
}

// BandName returns the conventional signal name for a band code, or the
// ANTEX frequency code (e.g. "G03") when the pair has no common name.
func BandName(sys System, band int) string {
	if name, ok := bandNames[sys][band]; ok {
		return name
	}
	return FrequencyCode(sys, band)
}

// FrequencyCode formats the ANTEX frequency code, e.g. "G01".
func FrequencyCode(sys System, band int) string {
	return fmt.Sprintf("%c%02d", sys.Letter(), band)
}

// errBandNumber marks a readable system letter followed by an unusable band.
var errBandNumber = errors.New("bad band number")

// parseFrequency reads the system letter and band number from a
// START OF FREQUENCY (or START OF FREQ RMS) line: 3X,A1,I2.
func parseFrequency(line string) (System, int, error) {
	if len(line) < 6 {
		return 0, 0, fmt.Errorf("frequency code missing in %q", strings.TrimSpace(line))
	}
	sys, ok := ParseSystem(line[3])
	if !ok {
		return 0, 0, fmt.Errorf("unknown system code %q", line[3:4])
	}
	field := strings.TrimSpace(line[4:6])
	band, err := strconv.Atoi(field)
	if err != nil {
		return 0, 0, fmt.Errorf("%w %q: %v", errBandNumber, field, err)
	}
	if band < 1 {
		return 0, 0, fmt.Errorf("%w %d", errBandNumber, band)
	}
	return sys, band, nil
}
