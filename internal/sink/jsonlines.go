package sink

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/lox/marinestream/internal/models"
)

// JSONLines writes one JSON object per line immediately and flushes the
// underlying transport at every page boundary.
type JSONLines struct {
	w   io.Writer
	enc *json.Encoder
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w, enc: json.NewEncoder(w)}
}

func (j *JSONLines) Emit(rec models.Record) error {
	return j.enc.Encode(rec)
}

func (j *JSONLines) PageDone() error {
	flush(j.w)
	return nil
}

func (j *JSONLines) Complete() error {
	flush(j.w)
	return nil
}

func flush(w io.Writer) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
