// Package sink delivers finished account snapshots to external
// destinations. A sink consumes rendered views only: engine state never
// leaves the process and is never read back, so a sink is an output target,
// not a persistence layer.
package sink

import (
	"context"
	"io"

	"github.com/paystream/tx-engine/internal/csvio"
	"github.com/paystream/tx-engine/internal/model"
)

// Sink writes one complete snapshot. Implementations include CSV (the
// default, to stdout), PostgreSQL, and Redis.
type Sink interface {
	WriteSnapshot(ctx context.Context, views []model.AccountView) error
}

// CSVSink renders the snapshot as CSV to any writer.
type CSVSink struct {
	w io.Writer
}

// NewCSVSink returns a sink writing CSV to w.
func NewCSVSink(w io.Writer) *CSVSink {
	return &CSVSink{w: w}
}

func (s *CSVSink) WriteSnapshot(_ context.Context, views []model.AccountView) error {
	return csvio.NewWriter(s.w).WriteSnapshot(views)
}
