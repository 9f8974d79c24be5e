package antex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// State is the position of a Session in the record grammar.
type State int

const (
	Idle State = iota
	InAntenna
	InFrequency
	InFrequencyRMS
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case InAntenna:
		return "InAntenna"
	case InFrequency:
		return "InFrequency"
	case InFrequencyRMS:
		return "InFrequencyRMS"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// COMMENT prefixes carrying calibrated-antenna counts.
const (
	gpsCalPrefix        = "# Number of Calibrated Antennas GPS:"
	gloCalPrefix        = "# Number of Calibrated Antennas GLO:"
	genericCalPrefix    = "# Number of Calibrated Antennas:"
	gloIndividualMarker = "# Number of Individual GLO-Calibrations"
)

// Session consumes ANTEX lines one at a time and yields each antenna when
// its END OF ANTENNA record arrives. A Session is not safe for concurrent
// use; one stream gets one Session.
type Session struct {
	state     State
	line      int
	text      string
	cal       *Calibration
	freq      BandKey
	capturing bool

	// gpsSpecific is set once a GPS-specific count comment was seen, so a
	// later generic count does not overwrite it.
	gpsSpecific bool

	header     FileHeader
	headerDone bool
}

// NewSession returns an idle session positioned before line 1.
func NewSession() *Session {
	return &Session{}
}

// State returns the current grammar state.
func (s *Session) State() State { return s.state }

// Capturing reports whether unlabeled lines are being read as grid rows.
func (s *Session) Capturing() bool { return s.capturing }

// Line returns the number of lines fed so far.
func (s *Session) Line() int { return s.line }

// Header returns the file header records seen so far.
func (s *Session) Header() FileHeader { return s.header }

// Feed processes the next line. It returns a non-nil Calibration when the
// line closes an antenna. Any error is a *ParseError and is fatal for the
// open antenna.
func (s *Session) Feed(line string) (*Calibration, error) {
	s.line++
	s.text = line
	kind := Classify(line)

	if s.capturing && kind == KindUnknown {
		return nil, s.gridRow(line)
	}

	switch kind {
	case KindStartOfAntenna:
		if s.state != Idle {
			return nil, s.fail(NestedAntenna, kind, fmt.Errorf("antenna opened at line %d is still open", s.cal.StartLine))
		}
		s.cal = &Calibration{StartLine: s.line, index: make(map[BandKey]*FrequencyBand)}
		s.state = InAntenna
		s.gpsSpecific = false
		s.headerDone = true

	case KindEndOfAntenna:
		switch s.state {
		case Idle:
			return nil, s.fail(UnmatchedEnd, kind, nil)
		case InFrequency, InFrequencyRMS:
			return nil, s.fail(RecordOutOfContext, kind, fmt.Errorf("frequency %s still open", s.freq))
		}
		cal := s.cal
		cal.EndLine = s.line
		s.Reset()
		return cal, nil

	case KindComment:
		return nil, s.comment(line)

	case KindTypeSerial, KindDAZI, KindZen, KindNumFrequencies, KindSinexCode,
		KindMethod, KindValidFrom, KindValidUntil:
		if s.state == Idle {
			return nil, s.fail(RecordOutOfContext, kind, errors.New("no antenna open"))
		}
		return nil, s.antennaField(kind, Data(line))

	case KindStartOfFrequency, KindStartOfFreqRMS:
		if s.state != InAntenna {
			return nil, s.fail(RecordOutOfContext, kind, fmt.Errorf("state %s", s.state))
		}
		sys, band, err := parseFrequency(line)
		if errors.Is(err, errBandNumber) {
			return nil, s.fail(MalformedRecord, kind, err)
		}
		if err != nil {
			return nil, s.fail(UnknownSystemCode, kind, err)
		}
		s.freq = BandKey{System: sys, Band: band}
		s.capturing = false
		if kind == KindStartOfFreqRMS {
			s.state = InFrequencyRMS
		} else {
			s.state = InFrequency
		}

	case KindEndOfFrequency, KindEndOfFreqRMS:
		want := InFrequency
		if kind == KindEndOfFreqRMS {
			want = InFrequencyRMS
		}
		if s.state != want {
			return nil, s.fail(RecordOutOfContext, kind, fmt.Errorf("state %s", s.state))
		}
		s.state = InAntenna
		s.capturing = false

	case KindNorthEastUp:
		if s.state != InFrequency && s.state != InFrequencyRMS {
			return nil, s.fail(RecordOutOfContext, kind, fmt.Errorf("state %s", s.state))
		}
		return nil, s.offset(Data(line))

	case KindVersion, KindPCVType:
		if s.state != Idle {
			return nil, s.fail(RecordOutOfContext, kind, errors.New("file header record inside an antenna"))
		}
		return nil, s.headerField(kind, Data(line))

	case KindEndOfHeader:
		s.headerDone = true
	}

	return nil, nil
}

// Close reports an antenna left open at end of input.
func (s *Session) Close() error {
	if s.state == Idle {
		return nil
	}
	return &ParseError{
		Kind: UnexpectedEOF,
		Line: s.line,
		Err:  fmt.Errorf("antenna %q opened at line %d has no END OF ANTENNA", s.cal.Type, s.cal.StartLine),
	}
}

// Reset abandons any open antenna and returns the session to Idle. The
// file header and line count are kept.
func (s *Session) Reset() {
	s.state = Idle
	s.cal = nil
	s.freq = BandKey{}
	s.capturing = false
	s.gpsSpecific = false
}

func (s *Session) antennaField(kind RecordKind, data string) error {
	cal := s.cal
	switch kind {
	case KindTypeSerial:
		cal.Type = strings.TrimRight(column(data, 0, 20), " ")
		cal.Serial = strings.TrimRight(column(data, 20, 60), " ")

	case KindDAZI:
		v, err := parseFloatColumn(data, 2, 8)
		if err != nil {
			return s.fail(MalformedRecord, kind, err)
		}
		cal.DAZI = v

	case KindZen:
		var vals [3]float64
		for i := range vals {
			v, err := parseFloatColumn(data, 2+6*i, 8+6*i)
			if err != nil {
				return s.fail(MalformedRecord, kind, err)
			}
			vals[i] = v
		}
		cal.Zen1, cal.Zen2, cal.DZen = vals[0], vals[1], vals[2]
		cal.zenSet = true

	case KindNumFrequencies:
		n, err := strconv.Atoi(strings.TrimSpace(column(data, 0, 6)))
		if err != nil {
			return s.fail(MalformedRecord, kind, err)
		}
		cal.NumFreqs = n

	case KindSinexCode:
		cal.SinexCode = strings.TrimSpace(column(data, 0, 10))

	case KindMethod:
		cal.Method = strings.TrimSpace(column(data, 0, 20))
		cal.Agency = strings.TrimSpace(column(data, 20, 40))
		if f := strings.TrimSpace(column(data, 40, 46)); f != "" {
			n, err := strconv.Atoi(f)
			if err != nil {
				return s.fail(MalformedRecord, kind, err)
			}
			cal.Individual = n
		}
		cal.Date = strings.TrimSpace(column(data, 50, 60))

	case KindValidFrom:
		cal.ValidFrom = strings.TrimSpace(data)

	case KindValidUntil:
		cal.ValidUntil = strings.TrimSpace(data)
	}
	return nil
}

func (s *Session) comment(line string) error {
	text := strings.TrimRight(Data(line), " ")
	if s.state == Idle {
		if !s.headerDone {
			s.header.Comments = append(s.header.Comments, text)
			return nil
		}
		return s.fail(RecordOutOfContext, KindComment, errors.New("no antenna open"))
	}

	cal := s.cal
	cal.Comments = append(cal.Comments, text)

	switch {
	case strings.HasPrefix(line, gpsCalPrefix):
		n, err := s.commentCount(line, gpsCalPrefix)
		if err != nil {
			return err
		}
		cal.GPSAntennas = &n
		s.gpsSpecific = true

	case strings.HasPrefix(line, genericCalPrefix):
		n, err := s.commentCount(line, genericCalPrefix)
		if err != nil {
			return err
		}
		if !s.gpsSpecific {
			cal.GPSAntennas = &n
		}

	case strings.HasPrefix(line, gloCalPrefix):
		n, err := s.commentCount(line, gloCalPrefix)
		if err != nil {
			return err
		}
		cal.GLOAntennas = &n

	case strings.HasPrefix(line, gloIndividualMarker):
		if cal.GLOAntennas == nil && cal.GPSAntennas != nil {
			n := *cal.GPSAntennas
			cal.GLOAntennas = &n
		}
	}
	return nil
}

func (s *Session) commentCount(line, prefix string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(column(line, len(prefix), labelColumn)))
	if err != nil {
		return 0, s.fail(MalformedComment, KindComment, err)
	}
	return n, nil
}

// offset stores a NORTH / EAST / UP record (3F10.2) and opens a fresh grid.
func (s *Session) offset(data string) error {
	if !s.cal.zenSet {
		return s.fail(RecordOutOfContext, KindNorthEastUp, errors.New("ZEN1 / ZEN2 / DZEN not yet seen"))
	}
	var vals [3]float64
	for i := range vals {
		v, err := parseFloatColumn(data, 10*i, 10*(i+1))
		if err != nil {
			return s.fail(MalformedGridRow, KindNorthEastUp, err)
		}
		vals[i] = v
	}
	off := Offset{North: vals[0], East: vals[1], Up: vals[2]}

	band := s.cal.band(s.freq)
	if s.state == InFrequencyRMS {
		band.RMSOffset = &off
		band.RMSGrid = Grid{}
	} else {
		band.Offset = off
		band.Grid = Grid{}
	}
	s.capturing = true
	return nil
}

func (s *Session) gridRow(line string) error {
	cal := s.cal
	az, samples, err := DecodeRow(line, GridSpec{Zen1: cal.Zen1, Zen2: cal.Zen2, DZen: cal.DZen})
	if err != nil {
		return s.fail(MalformedGridRow, KindUnknown, err)
	}
	band := cal.band(s.freq)
	if s.state == InFrequencyRMS {
		band.RMSGrid[az] = samples
	} else {
		band.Grid[az] = samples
	}
	return nil
}

func (s *Session) headerField(kind RecordKind, data string) error {
	switch kind {
	case KindVersion:
		v, err := parseFloatColumn(data, 0, 8)
		if err != nil {
			return s.fail(MalformedRecord, kind, err)
		}
		s.header.Version = v
		s.header.System = strings.TrimSpace(column(data, 20, 21))
	case KindPCVType:
		s.header.PCVType = strings.TrimSpace(column(data, 0, 1))
		s.header.RefAntenna = strings.TrimSpace(column(data, 20, 40))
		s.header.RefSerial = strings.TrimSpace(column(data, 40, 60))
	}
	return nil
}

func (s *Session) fail(kind ErrorKind, rec RecordKind, err error) error {
	return &ParseError{
		Kind:   kind,
		Record: rec,
		Line:   s.line,
		Text:   strings.TrimRight(s.text, " \r\n"),
		Err:    err,
	}
}

// column returns s[from:to] clipped to the string length.
func column(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

func parseFloatColumn(s string, from, to int) (float64, error) {
	f := strings.TrimSpace(column(s, from, to))
	if f == "" {
		return 0, fmt.Errorf("columns %d-%d are blank", from+1, to)
	}
	return strconv.ParseFloat(f, 64)
}
