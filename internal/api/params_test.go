package api

import (
	"net/url"
	"testing"
	"time"

	"github.com/lox/marinestream/internal/aggregate"
	"github.com/lox/marinestream/internal/catalog"
)

func TestParseQuery(t *testing.T) {
	src := catalog.Source{Name: "waves", Filterable: []string{"latitude", "longitude"}}
	now := time.Date(2021, 3, 10, 18, 30, 0, 0, time.UTC)

	t.Run("defaults", func(t *testing.T) {
		q, err := parseQuery(url.Values{}, src, now, 7, 7)
		if err != nil {
			t.Fatal(err)
		}
		if want := time.Date(2021, 3, 3, 0, 0, 0, 0, time.UTC); !q.Bounds.Since.Equal(want) {
			t.Errorf("since = %v, want %v", q.Bounds.Since, want)
		}
		if want := time.Date(2021, 3, 17, 0, 0, 0, 0, time.UTC); !q.Bounds.Until.Equal(want) {
			t.Errorf("until = %v, want %v", q.Bounds.Until, want)
		}
		if len(q.Bounds.Filters) != 0 || q.Granularity != aggregate.None {
			t.Errorf("query = %+v", q)
		}
	})

	t.Run("explicit", func(t *testing.T) {
		v, _ := url.ParseQuery("since=2020-01-01T00:00:00Z&until=2020-02-01T00:00:00Z&latitude>=51&latitude<=55.5&longitude<=-6&aggregate=monthly")
		q, err := parseQuery(v, src, now, 7, 7)
		if err != nil {
			t.Fatal(err)
		}
		if len(q.Bounds.Filters) != 2 {
			t.Fatalf("filters = %d, want 2", len(q.Bounds.Filters))
		}
		lat, lon := q.Bounds.Filters[0], q.Bounds.Filters[1]
		if lat.Field != "latitude" || *lat.Min != 51 || *lat.Max != 55.5 {
			t.Errorf("latitude filter = %+v", lat)
		}
		if lon.Field != "longitude" || lon.Min != nil || *lon.Max != -6 {
			t.Errorf("longitude filter = %+v", lon)
		}
		if q.Granularity != aggregate.Monthly {
			t.Errorf("granularity = %v", q.Granularity)
		}
	})

	t.Run("ignores unfilterable fields", func(t *testing.T) {
		v, _ := url.ParseQuery("station_id>=5")
		q, err := parseQuery(v, src, now, 7, 7)
		if err != nil {
			t.Fatal(err)
		}
		if len(q.Bounds.Filters) != 0 {
			t.Errorf("filters = %+v", q.Bounds.Filters)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"since=2020-01-01", "until=soon", "longitude>=east", "aggregate=weekly"} {
			v, _ := url.ParseQuery(raw)
			if _, err := parseQuery(v, src, now, 7, 7); err == nil {
				t.Errorf("parseQuery(%q) succeeded, want error", raw)
			}
		}
	})
}
