package antex

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a fatal parse failure.
type ErrorKind int

const (
	NestedAntenna ErrorKind = iota + 1
	UnmatchedEnd
	RecordOutOfContext
	UnknownSystemCode
	MalformedComment
	MalformedGridRow
	MalformedRecord
	UnexpectedEOF
)

// Sentinels for errors.Is; every *ParseError unwraps to the one matching its Kind.
var (
	ErrNestedAntenna      = errors.New("nested START OF ANTENNA")
	ErrUnmatchedEnd       = errors.New("END OF ANTENNA without START OF ANTENNA")
	ErrRecordOutOfContext = errors.New("record out of context")
	ErrUnknownSystemCode  = errors.New("unknown satellite system code")
	ErrMalformedComment   = errors.New("malformed calibrated-antenna comment")
	ErrMalformedGridRow   = errors.New("malformed PCV grid row")
	ErrMalformedRecord    = errors.New("malformed header record")
	ErrUnexpectedEOF      = errors.New("input ended inside an antenna")
)

var kindSentinels = map[ErrorKind]error{
	NestedAntenna:      ErrNestedAntenna,
	UnmatchedEnd:       ErrUnmatchedEnd,
	RecordOutOfContext: ErrRecordOutOfContext,
	UnknownSystemCode:  ErrUnknownSystemCode,
	MalformedComment:   ErrMalformedComment,
	MalformedGridRow:   ErrMalformedGridRow,
	MalformedRecord:    ErrMalformedRecord,
	UnexpectedEOF:      ErrUnexpectedEOF,
}

func (k ErrorKind) String() string {
	switch k {
	case NestedAntenna:
		return "NestedAntennaError"
	case UnmatchedEnd:
		return "UnmatchedEndError"
	case RecordOutOfContext:
		return "RecordOutOfContextError"
	case UnknownSystemCode:
		return "UnknownSystemCode"
	case MalformedComment:
		return "MalformedCommentError"
	case MalformedGridRow:
		return "MalformedGridRowError"
	case MalformedRecord:
		return "MalformedRecordError"
	case UnexpectedEOF:
		return "UnexpectedEOF"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError is the single error type returned by the parser.
type ParseError struct {
	Kind   ErrorKind
	Record RecordKind
	Line   int    // 1-based input line number
	Text   string // offending line, right-trimmed
	Err    error  // underlying cause, may be nil
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "line %d: %s", e.Line, kindSentinels[e.Kind])
	if e.Record != KindUnknown {
		fmt.Fprintf(&b, " (%s)", e.Record)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *ParseError) Unwrap() []error {
	errs := []error{kindSentinels[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
