package timeseries

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestPlan(t *testing.T) {
	pages := Plan(day(1), day(20), 14*24*time.Hour)
	if len(pages) != 2 {
		t.Fatalf("len(pages) = %d, want 2", len(pages))
	}
	if !pages[0].Start.Equal(day(1)) || !pages[0].End.Equal(day(15)) {
		t.Errorf("page 0 = %s, want 2020-01-01/2020-01-15", pages[0])
	}
	if !pages[1].Start.Equal(day(15)) || !pages[1].End.Equal(day(20)) {
		t.Errorf("page 1 = %s, want 2020-01-15/2020-01-20", pages[1])
	}
}

func TestPlanDegenerate(t *testing.T) {
	pages := Plan(day(3), day(3), DefaultPageSpan)
	if len(pages) != 1 {
		t.Fatalf("since == until: len(pages) = %d, want 1", len(pages))
	}
	if !pages[0].Start.Equal(day(3)) || !pages[0].End.Equal(day(3)) {
		t.Errorf("page = %s, want empty range at 2020-01-03", pages[0])
	}

	if pages := Plan(day(4), day(3), DefaultPageSpan); len(pages) != 0 {
		t.Errorf("since > until: len(pages) = %d, want 0", len(pages))
	}
}

func TestPlanTilesRange(t *testing.T) {
	since := time.Date(2019, 12, 30, 6, 30, 0, 0, time.UTC)
	spans := []time.Duration{time.Hour, 7 * time.Hour, 24 * time.Hour, 14 * 24 * time.Hour, 400 * 24 * time.Hour}
	lengths := []time.Duration{time.Minute, 5 * time.Hour, 13 * 24 * time.Hour, 14 * 24 * time.Hour, 90 * 24 * time.Hour}

	for _, span := range spans {
		for _, length := range lengths {
			until := since.Add(length)
			pages := Plan(since, until, span)
			if len(pages) == 0 {
				t.Fatalf("span %s length %s: no pages", span, length)
			}
			if !pages[0].Start.Equal(since) {
				t.Errorf("span %s length %s: first start %s", span, length, pages[0].Start)
			}
			if !pages[len(pages)-1].End.Equal(until) {
				t.Errorf("span %s length %s: last end %s, want %s", span, length, pages[len(pages)-1].End, until)
			}
			for i, p := range pages {
				if !p.End.After(p.Start) {
					t.Errorf("span %s length %s: page %d empty or reversed: %s", span, length, i, p)
				}
				if p.End.Sub(p.Start) > span {
					t.Errorf("span %s length %s: page %d wider than span", span, length, i)
				}
				if i > 0 && !p.Start.Equal(pages[i-1].End) {
					t.Errorf("span %s length %s: gap or overlap before page %d", span, length, i)
				}
			}
		}
	}
}

func TestPlanDefaultSpan(t *testing.T) {
	pages := Plan(day(1), day(29), 0)
	if len(pages) != 2 {
		t.Errorf("len(pages) = %d, want 2 with the default 14 day span", len(pages))
	}
}
