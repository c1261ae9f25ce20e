// Package csvio adapts the engine's record stream to CSV transport: a
// header-driven reader mapping rows onto transactions and a writer
// rendering account snapshots.
//
// Input is `type, client, tx, amount` in any column order. The header row
// is required, surrounding whitespace is ignored, the amount column and
// per-row trailing fields are optional. An unparsable amount degrades to an
// absent amount rather than an error, since one bad field must never take
// down a stream; the engine drops the record downstream.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paystream/tx-engine/internal/model"
)

// ErrMissingHeader is returned when the input has no header row.
var ErrMissingHeader = errors.New("csvio: missing header row")

// RowError reports a row that could not be mapped onto a transaction. It is
// per-record: the reader stays usable and subsequent rows still parse.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("csvio: row at line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Reader yields transactions from a CSV stream. Columns are located by
// header name, case-insensitively, so column order never matters.
type Reader struct {
	csv  *csv.Reader
	cols map[string]int
}

// NewReader consumes the header row and returns a reader for the remaining
// records. The type, client and tx columns must be present; amount is
// optional.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("csvio: read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"type", "client", "tx"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csvio: header lacks required column %q", required)
		}
	}
	return &Reader{csv: cr, cols: cols}, nil
}

// Read returns the next record. io.EOF ends the stream. A *RowError reports
// one unusable row and leaves the reader positioned on the following row,
// so callers choose between skipping and aborting.
func (r *Reader) Read() (model.Transaction, error) {
	rec, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return model.Transaction{}, io.EOF
	}
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return model.Transaction{}, &RowError{Line: pe.Line, Err: pe.Err}
		}
		return model.Transaction{}, fmt.Errorf("csvio: read: %w", err)
	}
	line, _ := r.csv.FieldPos(0)

	field := func(col string) string {
		i, ok := r.cols[col]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	typ, err := model.ParseTxType(field("type"))
	if err != nil {
		return model.Transaction{}, &RowError{Line: line, Err: err}
	}
	client, err := strconv.ParseUint(field("client"), 10, 16)
	if err != nil {
		return model.Transaction{}, &RowError{Line: line, Err: fmt.Errorf("client: %w", err)}
	}
	txid, err := strconv.ParseUint(field("tx"), 10, 32)
	if err != nil {
		return model.Transaction{}, &RowError{Line: line, Err: fmt.Errorf("tx: %w", err)}
	}

	tx := model.Transaction{Type: typ, Client: uint16(client), Tx: uint32(txid)}
	if raw := field("amount"); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			tx.Amount = &d
		}
		// Unparsable amounts stay absent; the engine drops the record.
	}
	return tx, nil
}

// Writer renders account views as the snapshot table
// `client,available,held,total,locked` with amounts at four fractional
// digits.
type Writer struct {
	csv *csv.Writer
}

// NewWriter returns a Writer targeting w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteSnapshot writes the header followed by one row per view, in the
// order given.
func (w *Writer) WriteSnapshot(views []model.AccountView) error {
	if err := w.csv.Write([]string{"client", "available", "held", "total", "locked"}); err != nil {
		return fmt.Errorf("csvio: write header: %w", err)
	}
	for _, v := range views {
		row := []string{
			strconv.FormatUint(uint64(v.Client), 10),
			v.Available.String(),
			v.Held.String(),
			v.Total.String(),
			strconv.FormatBool(v.Locked),
		}
		if err := w.csv.Write(row); err != nil {
			return fmt.Errorf("csvio: write row: %w", err)
		}
	}
	w.csv.Flush()
	return w.csv.Error()
}
