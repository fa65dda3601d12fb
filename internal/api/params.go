package api

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/lox/marinestream/internal/aggregate"
	"github.com/lox/marinestream/internal/catalog"
	"github.com/lox/marinestream/internal/models"
)

// query is the parsed form of a stream request.
type query struct {
	Bounds      models.Bounds
	Granularity aggregate.Granularity
}

// parseQuery reads since, until, "<field>>" / "<field><" range bounds for
// each filterable field, and aggregate. Missing since/until default to
// midnight UTC sinceDays before and untilDays after now.
func parseQuery(v url.Values, src catalog.Source, now time.Time, sinceDays, untilDays int) (query, error) {
	var q query
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	since, err := parseTimeParam(v, "since", today.AddDate(0, 0, -sinceDays))
	if err != nil {
		return q, err
	}
	until, err := parseTimeParam(v, "until", today.AddDate(0, 0, untilDays))
	if err != nil {
		return q, err
	}
	q.Bounds = models.Bounds{Since: since, Until: until}

	for _, field := range src.Filterable {
		min, err := parseFloatParam(v, field+">")
		if err != nil {
			return q, err
		}
		max, err := parseFloatParam(v, field+"<")
		if err != nil {
			return q, err
		}
		if min == nil && max == nil {
			continue
		}
		q.Bounds.Filters = append(q.Bounds.Filters, models.RangeFilter{Field: field, Min: min, Max: max})
	}

	q.Granularity, err = aggregate.ParseGranularity(v.Get("aggregate"))
	if err != nil {
		return q, err
	}
	return q, nil
}

func parseTimeParam(v url.Values, name string, def time.Time) (time.Time, error) {
	s := v.Get(name)
	if s == "" {
		return def, nil
	}
	t, err := models.ParseTime(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return t, nil
}

func parseFloatParam(v url.Values, name string) (*float64, error) {
	s := v.Get(name)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", name, s)
	}
	return &f, nil
}
