package aggregate

import (
	"fmt"
	"time"
)

// Granularity is the width of an aggregation bucket.
type Granularity int

const (
	None Granularity = iota
	Hourly
	Daily
	Monthly
	Yearly
)

// ParseGranularity maps the request selector to a Granularity. The empty
// string selects None.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "":
		return None, nil
	case "hourly":
		return Hourly, nil
	case "daily":
		return Daily, nil
	case "monthly":
		return Monthly, nil
	case "yearly":
		return Yearly, nil
	}
	return None, fmt.Errorf("unknown aggregate %q: want hourly|daily|monthly|yearly", s)
}

func (g Granularity) String() string {
	switch g {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Monthly:
		return "monthly"
	case Yearly:
		return "yearly"
	default:
		return "none"
	}
}

// Truncate returns the start of the UTC bucket containing t.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case Hourly:
		return t.Truncate(time.Hour)
	case Daily:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Yearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}
