package sink

import (
	"bytes"
	"encoding/csv"
	"io"

	"github.com/lox/marinestream/internal/models"
)

// Tabular renders CSV. The header is taken from the first record and never
// changes afterwards: a later record's missing fields render empty and its
// extra fields are dropped. Rows are buffered per page.
type Tabular struct {
	w      io.Writer
	header []string
	buf    bytes.Buffer
	csv    *csv.Writer
}

func NewTabular(w io.Writer) *Tabular {
	t := &Tabular{w: w}
	t.csv = csv.NewWriter(&t.buf)
	return t
}

// Header returns the inferred column order, or nil before the first record.
func (t *Tabular) Header() []string { return t.header }

func (t *Tabular) Emit(rec models.Record) error {
	if t.header == nil {
		t.header = rec.Names()
		if err := t.csv.Write(t.header); err != nil {
			return err
		}
	}
	row := make([]string, len(t.header))
	for i, name := range t.header {
		if v, ok := rec.Get(name); ok {
			row[i] = models.Text(v)
		}
	}
	return t.csv.Write(row)
}

// PageDone writes the buffered rows and resets the row buffer. The header
// is kept for the next page.
func (t *Tabular) PageDone() error {
	t.csv.Flush()
	if err := t.csv.Error(); err != nil {
		return err
	}
	if t.buf.Len() > 0 {
		if _, err := t.w.Write(t.buf.Bytes()); err != nil {
			return err
		}
		t.buf.Reset()
	}
	flush(t.w)
	return nil
}

func (t *Tabular) Complete() error {
	return t.PageDone()
}
