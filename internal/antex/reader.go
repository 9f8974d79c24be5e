package antex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Options controls a Reader.
type Options struct {
	// Exclude drops calibrations whose antenna type it returns true for.
	// Excluded blocks are still parsed and validated.
	Exclude func(antennaType string) bool

	// SkipInvalid turns a fatal ParseError into a skipped antenna: the
	// error is recorded, the open antenna discarded and reading resumes at
	// the next START OF ANTENNA. Off by default; the format is fail-fast.
	SkipInvalid bool
}

// Stats counts what a Reader has seen.
type Stats struct {
	Lines    int `json:"lines"`
	Antennas int `json:"antennas"`
	Excluded int `json:"excluded"`
	Skipped  int `json:"skipped"`
	Bands    int `json:"bands"`
}

// Reader drives a Session over a line stream.
type Reader struct {
	sc   *bufio.Scanner
	sess *Session
	opts Options

	stats    Stats
	skipped  []*ParseError
	skipping bool
	done     bool
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader, opts Options) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc, sess: NewSession(), opts: opts}
}

// Next returns the next finalized calibration in input order, or io.EOF.
func (r *Reader) Next() (*Calibration, error) {
	if r.done {
		return nil, io.EOF
	}
	for r.sc.Scan() {
		line := r.sc.Text()
		r.stats.Lines++

		if r.skipping {
			if Classify(line) != KindStartOfAntenna {
				r.sess.line++
				continue
			}
			r.skipping = false
		}

		cal, err := r.sess.Feed(line)
		if err != nil {
			if perr := r.recover(err, line); perr != nil {
				r.done = true
				return nil, perr
			}
			continue
		}
		if cal == nil {
			continue
		}
		if r.opts.Exclude != nil && r.opts.Exclude(cal.Type) {
			r.stats.Excluded++
			continue
		}
		r.stats.Antennas++
		r.stats.Bands += len(cal.Bands)
		return cal, nil
	}

	r.done = true
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("read line %d: %w", r.stats.Lines+1, err)
	}
	if err := r.sess.Close(); err != nil {
		if perr := r.recover(err, ""); perr != nil {
			return nil, perr
		}
	}
	return nil, io.EOF
}

// recover records err and returns nil when skipping is enabled. A nested
// START OF ANTENNA both ends the broken block and opens the next one, so
// that line is fed again instead of being skipped.
func (r *Reader) recover(err error, line string) error {
	var perr *ParseError
	if !r.opts.SkipInvalid || !errors.As(err, &perr) {
		return err
	}
	r.skipped = append(r.skipped, perr)
	r.stats.Skipped++
	r.sess.Reset()

	if perr.Kind == NestedAntenna && line != "" {
		r.sess.line--
		_, err := r.sess.Feed(line)
		return err
	}
	r.skipping = true
	return nil
}

// Stats returns the counters so far.
func (r *Reader) Stats() Stats { return r.stats }

// Skipped returns the errors swallowed under SkipInvalid.
func (r *Reader) Skipped() []*ParseError { return r.skipped }

// Header returns the file header records.
func (r *Reader) Header() FileHeader { return r.sess.Header() }

// ReadAll parses the whole stream and returns every calibration in order.
func ReadAll(rd io.Reader, opts Options) ([]*Calibration, error) {
	r := NewReader(rd, opts)
	var out []*Calibration
	for {
		cal, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, cal)
	}
}
