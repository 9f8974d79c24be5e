package registry

import (
	"context"
	"time"
)

// now is replaced in tests.
var now = time.Now

// Trace records what one sink did with one record.
type Trace struct {
	Sink     string        // Name of the sink.
	Accepted bool          // Whether Accept returned true.
	Err      error         // Write error, nil on success or when skipped.
	Elapsed  time.Duration // Time spent in Write.
}

// DispatchWithTrace behaves like Dispatch and also reports, per sink in
// dispatch order, whether it accepted the record and how the write went.
func (r *Registry) DispatchWithTrace(ctx context.Context, rec *Record) ([]Trace, error) {
	return r.dispatch(ctx, rec, true)
}
