// Package registry dispatches finalized calibrations to output sinks.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"antex_parser/internal/aggregate"
	"antex_parser/internal/antex"
)

// Record is what every sink receives: one calibration and its summary.
type Record struct {
	Calibration *antex.Calibration
	Summary     *aggregate.Summary
	Source      string // input file name, "-" for stdin
}

// Sink is implemented by each output.
type Sink interface {
	// Name returns the sink's unique identifier.
	Name() string

	// Priority determines dispatch order. Lower number = written first.
	Priority() int

	// Accept performs a cheap check before Write.
	// Returns false if the sink has nothing to do for this record.
	Accept(rec *Record) bool

	// Write stores or forwards the record.
	Write(ctx context.Context, rec *Record) error
}

// Registry holds the sinks in priority order.
type Registry struct {
	mu     sync.RWMutex
	sinks  []Sink
	sorted bool
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a sink. Names must be unique.
func (r *Registry) Register(s Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sinks {
		if existing.Name() == s.Name() {
			return fmt.Errorf("sink %q already registered", s.Name())
		}
	}
	r.sinks = append(r.sinks, s)
	r.sorted = false
	return nil
}

// Sort orders the sinks by priority. Dispatch sorts lazily as well.
func (r *Registry) Sort() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sort()
}

func (r *Registry) sort() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.sinks, func(i, j int) bool {
		return r.sinks[i].Priority() < r.sinks[j].Priority()
	})
	r.sorted = true
}

// Dispatch writes rec to every accepting sink in priority order. A failing
// sink does not stop the others; all failures are joined.
func (r *Registry) Dispatch(ctx context.Context, rec *Record) error {
	_, err := r.dispatch(ctx, rec, false)
	return err
}

func (r *Registry) dispatch(ctx context.Context, rec *Record, trace bool) ([]Trace, error) {
	r.mu.Lock()
	r.sort()
	sinks := append([]Sink(nil), r.sinks...)
	r.mu.Unlock()

	var traces []Trace
	var errs []error
	for _, s := range sinks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		t := Trace{Sink: s.Name(), Accepted: s.Accept(rec)}
		if t.Accepted {
			start := now()
			t.Err = s.Write(ctx, rec)
			t.Elapsed = now().Sub(start)
			if t.Err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), t.Err))
			}
		}
		if trace {
			traces = append(traces, t)
		}
	}
	return traces, errors.Join(errs...)
}

// Names returns the sink names in dispatch order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sort()

	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	return names
}

// Len returns the number of registered sinks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Close closes every sink that implements io.Closer.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
