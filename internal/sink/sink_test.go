package sink

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lox/marinestream/internal/models"
)

func record(names []string, values ...any) models.Record {
	return models.NewRecord(names, values)
}

var cols = []string{"time", "station_id", "Water_Level"}

func TestTabular_HeaderFromFirstRecord(t *testing.T) {
	var out strings.Builder
	tab := NewTabular(&out)

	if err := tab.Emit(record(cols, "2020-01-01T00:00:00Z", "M2", json.Number("1.5"))); err != nil {
		t.Fatal(err)
	}
	// Missing Water_Level, extra QC_Flag.
	if err := tab.Emit(record([]string{"time", "station_id", "QC_Flag"}, "2020-01-01T01:00:00Z", "M3", json.Number("1"))); err != nil {
		t.Fatal(err)
	}
	if err := tab.PageDone(); err != nil {
		t.Fatal(err)
	}
	if err := tab.Emit(record(cols, "2020-01-01T02:00:00Z", "M2", nil)); err != nil {
		t.Fatal(err)
	}
	if err := tab.Complete(); err != nil {
		t.Fatal(err)
	}

	want := "time,station_id,Water_Level\n" +
		"2020-01-01T00:00:00Z,M2,1.5\n" +
		"2020-01-01T01:00:00Z,M3,\n" +
		"2020-01-01T02:00:00Z,M2,\n"
	if out.String() != want {
		t.Errorf("csv =\n%s\nwant\n%s", out.String(), want)
	}
	if got := strings.Join(tab.Header(), ","); got != "time,station_id,Water_Level" {
		t.Errorf("Header = %s", got)
	}
}

func TestTabular_BuffersUntilPageDone(t *testing.T) {
	rec := httptest.NewRecorder()
	tab := NewTabular(rec)

	_ = tab.Emit(record(cols, "2020-01-01T00:00:00Z", "M2", json.Number("1")))
	if rec.Body.Len() != 0 {
		t.Fatalf("wrote %q before page boundary", rec.Body.String())
	}
	if err := tab.PageDone(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(rec.Body.String(), "time,station_id,Water_Level\n") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if !rec.Flushed {
		t.Error("PageDone should flush the response")
	}
}

func TestTabular_QuotesValues(t *testing.T) {
	var out strings.Builder
	tab := NewTabular(&out)
	_ = tab.Emit(record([]string{"station_id"}, "Dublin, Port"))
	_ = tab.Complete()
	if want := "station_id\n\"Dublin, Port\"\n"; out.String() != want {
		t.Errorf("csv = %q, want %q", out.String(), want)
	}
}

func TestTabular_EmptyStreamWritesNothing(t *testing.T) {
	var out strings.Builder
	tab := NewTabular(&out)
	if err := tab.PageDone(); err != nil {
		t.Fatal(err)
	}
	if err := tab.Complete(); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("wrote %q for an empty stream", out.String())
	}
}

func TestJSONLines(t *testing.T) {
	rec := httptest.NewRecorder()
	j := NewJSONLines(rec)

	_ = j.Emit(record(cols, "2020-01-01T00:00:00Z", "M2", json.Number("1.50")))
	_ = j.Emit(record(cols, "2020-01-01T01:00:00Z", "M2", nil))
	if rec.Flushed {
		t.Error("flushed before page boundary")
	}
	if err := j.PageDone(); err != nil {
		t.Fatal(err)
	}
	if !rec.Flushed {
		t.Error("PageDone should flush the response")
	}

	want := `{"time":"2020-01-01T00:00:00Z","station_id":"M2","Water_Level":1.50}` + "\n" +
		`{"time":"2020-01-01T01:00:00Z","station_id":"M2","Water_Level":null}` + "\n"
	if rec.Body.String() != want {
		t.Errorf("body =\n%s\nwant\n%s", rec.Body.String(), want)
	}
}

func TestPush(t *testing.T) {
	var msgs []string
	p := NewPush(func(b []byte) error {
		msgs = append(msgs, string(b))
		return nil
	})
	_ = p.Emit(record(cols, "2020-01-01T00:00:00Z", "M2", json.Number("2")))
	_ = p.PageDone()
	_ = p.Emit(record(cols, "2020-01-01T01:00:00Z", "M3", json.Number("3")))
	_ = p.Complete()

	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if want := `{"time":"2020-01-01T01:00:00Z","station_id":"M3","Water_Level":3}`; msgs[1] != want {
		t.Errorf("message = %s, want %s", msgs[1], want)
	}
}

func TestPush_SendError(t *testing.T) {
	closed := errors.New("connection closed")
	p := NewPush(func([]byte) error { return closed })
	if err := p.Emit(record(cols, "2020-01-01T00:00:00Z", "M2", json.Number("2"))); !errors.Is(err, closed) {
		t.Errorf("Emit = %v, want %v", err, closed)
	}
}
