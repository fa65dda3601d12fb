package timeseries

import (
	"time"

	"github.com/lox/marinestream/internal/models"
)

// DefaultPageSpan is the widest time range requested in a single fetch.
const DefaultPageSpan = 14 * 24 * time.Hour

// Plan tiles [since, until) into ascending pages no wider than span. The
// last page ends exactly at until. since == until yields one empty page and
// since > until yields none.
func Plan(since, until time.Time, span time.Duration) []models.Page {
	if since.After(until) {
		return nil
	}
	if span <= 0 {
		span = DefaultPageSpan
	}
	if since.Equal(until) {
		return []models.Page{{Start: since, End: until}}
	}

	var pages []models.Page
	for cursor := since; cursor.Before(until); {
		end := cursor.Add(span)
		if end.After(until) {
			end = until
		}
		pages = append(pages, models.Page{Start: cursor, End: end})
		cursor = end
	}
	return pages
}
