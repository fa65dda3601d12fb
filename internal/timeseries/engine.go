package timeseries

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lox/marinestream/internal/aggregate"
	"github.com/lox/marinestream/internal/catalog"
	"github.com/lox/marinestream/internal/models"
)

// PageFetcher turns a page URL into a parsed table.
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*models.Table, error)
}

// Sink receives records and summaries. PageDone fires once per planned page,
// Complete once at the end of each run after the final aggregate flush.
type Sink interface {
	Emit(rec models.Record) error
	PageDone() error
	Complete() error
}

// PageResult reports the outcome of one page. Err is non-nil when the fetch
// or parse failed; such pages contribute no records and leave the watermark
// unchanged.
type PageResult struct {
	Source     string
	Page       models.Page
	URL        string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       int
	Emitted    int
	Skipped    int
	Err        error
}

// Kind classifies Err as "fetch" or "parse", or "" for a successful page.
func (r PageResult) Kind() string {
	switch {
	case r.Err == nil:
		return ""
	case errors.Is(r.Err, models.ErrParseFailure):
		return "parse"
	default:
		return "fetch"
	}
}

// Config is the per-session retrieval setup.
type Config struct {
	Source      catalog.Source
	Bounds      models.Bounds
	PageSpan    time.Duration
	Granularity aggregate.Granularity
	Fetcher     PageFetcher
	Sink        Sink
	// OnPage, if set, observes every page result including failures.
	OnPage func(PageResult)
}

// Engine retrieves one session's records page by page. It owns the
// watermark: the latest record time already delivered. Records at or before
// the watermark are never emitted again, so repeated runs only deliver new
// data.
type Engine struct {
	cfg Config

	mu        sync.Mutex
	watermark time.Time
}

func NewEngine(cfg Config) *Engine {
	if cfg.PageSpan <= 0 {
		cfg.PageSpan = DefaultPageSpan
	}
	if cfg.Source.TimeField == "" {
		cfg.Source.TimeField = catalog.DefaultTimeField
	}
	return &Engine{cfg: cfg, watermark: cfg.Bounds.Since}
}

func (e *Engine) Watermark() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.watermark
}

// Until is the horizon at which live polling stops.
func (e *Engine) Until() time.Time { return e.cfg.Bounds.Until }

func (e *Engine) setWatermark(t time.Time) {
	e.mu.Lock()
	if t.After(e.watermark) {
		e.watermark = t
	}
	e.mu.Unlock()
}

// Run fetches every page between the watermark and the upper bound in
// ascending order, one at a time. Page failures are reported through OnPage
// and do not stop the run. Run returns an error only when ctx is cancelled
// or the sink fails.
func (e *Engine) Run(ctx context.Context) error {
	emit := e.cfg.Sink.Emit
	var agg *aggregate.Aggregator
	if e.cfg.Granularity != aggregate.None {
		agg = aggregate.New(aggregate.Options{
			Granularity: e.cfg.Granularity,
			TimeField:   e.cfg.Source.TimeField,
			GroupField:  e.cfg.Source.GroupField,
		}, e.cfg.Sink.Emit)
		emit = agg.Append
	}

	for _, page := range Plan(e.Watermark(), e.cfg.Bounds.Until, e.cfg.PageSpan) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.runPage(ctx, page, emit); err != nil {
			return err
		}
		if err := e.cfg.Sink.PageDone(); err != nil {
			return fmt.Errorf("page done: %w", err)
		}
	}

	if agg != nil {
		if err := agg.Flush(); err != nil {
			return fmt.Errorf("flush aggregates: %w", err)
		}
	}
	return e.cfg.Sink.Complete()
}

func (e *Engine) runPage(ctx context.Context, page models.Page, emit func(models.Record) error) error {
	res := PageResult{
		Source:    e.cfg.Source.Name,
		Page:      page,
		URL:       e.cfg.Source.PageURL(page, e.cfg.Bounds.Filters),
		StartedAt: time.Now(),
	}
	defer func() {
		res.FinishedAt = time.Now()
		e.report(res)
	}()

	table, err := e.cfg.Fetcher.FetchPage(ctx, res.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		res.Err = err
		return nil
	}

	timeField := e.cfg.Source.TimeField
	before := e.Watermark()
	high := before
	res.Rows = len(table.Rows)
	for _, row := range table.Rows {
		rec := models.NewRecord(table.ColumnNames, row)
		ts, err := rec.Time(timeField)
		if err != nil {
			res.Skipped++
			continue
		}
		if ts.After(high) {
			high = ts
		}
		if !ts.After(before) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(rec); err != nil {
			if errors.Is(err, aggregate.ErrOutOfOrder) {
				log.Printf("engine: %s: page %s: %v", e.cfg.Source.Name, page, err)
				res.Skipped++
				continue
			}
			return fmt.Errorf("emit: %w", err)
		}
		res.Emitted++
	}
	e.setWatermark(high)
	return nil
}

func (e *Engine) report(res PageResult) {
	if res.Err != nil {
		log.Printf("engine: %s: page %s: %s failure: %v", res.Source, res.Page, res.Kind(), res.Err)
	}
	if e.cfg.OnPage != nil {
		e.cfg.OnPage(res)
	}
}
