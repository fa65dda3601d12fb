package api

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lox/marinestream/internal/catalog"
	"github.com/lox/marinestream/internal/metrics"
	"github.com/lox/marinestream/internal/store"
	"github.com/lox/marinestream/internal/timeseries"
)

// Options tune retrieval for every session the server opens.
type Options struct {
	Port             string
	PageSpan         time.Duration
	PollInterval     time.Duration
	DefaultSinceDays int
	DefaultUntilDays int
	// Now is the clock used for default bounds.
	Now func() time.Time
}

type Server struct {
	catalog *catalog.Catalog
	fetcher timeseries.PageFetcher
	store   *store.Store
	opts    Options
}

// NewServer builds the HTTP surface. st may be nil, in which case page
// results are logged and counted but not persisted.
func NewServer(cat *catalog.Catalog, fetcher timeseries.PageFetcher, st *store.Store, opts Options) *Server {
	if opts.PageSpan <= 0 {
		opts.PageSpan = timeseries.DefaultPageSpan
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = timeseries.DefaultPollInterval
	}
	if opts.DefaultSinceDays == 0 {
		opts.DefaultSinceDays = 7
	}
	if opts.DefaultUntilDays == 0 {
		opts.DefaultUntilDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		catalog: cat,
		fetcher: fetcher,
		store:   st,
		opts:    opts,
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/data/mi/{name}", s.handleData).Methods(http.MethodGet)
	r.HandleFunc("/csv/mi/{name}", s.handleCSV).Methods(http.MethodGet)
	r.HandleFunc("/ws/mi/{name}", s.handleStream).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/sources", s.handleAPISources).Methods(http.MethodGet)
	r.HandleFunc("/api/fetch-errors", s.handleAPIFetchErrors).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    ":" + s.opts.Port,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// observePage records every page outcome: metrics always, the audit log when
// a store is configured.
func (s *Server) observePage(res timeseries.PageResult) {
	status := "ok"
	if kind := res.Kind(); kind != "" {
		status = kind + "_error"
	}
	metrics.PageFetchesTotal.WithLabelValues(res.Source, status).Inc()
	metrics.PageFetchLatency.WithLabelValues(res.Source).Observe(res.FinishedAt.Sub(res.StartedAt).Seconds())
	metrics.RecordsEmitted.WithLabelValues(res.Source).Add(float64(res.Emitted))
	metrics.RowsSkipped.WithLabelValues(res.Source).Add(float64(res.Skipped))

	if s.store == nil {
		return
	}
	run := &store.FetchRun{
		StartedAt:      res.StartedAt,
		FinishedAt:     res.FinishedAt,
		Source:         res.Source,
		PageStart:      res.Page.Start,
		PageEnd:        res.Page.End,
		URL:            res.URL,
		RowsParsed:     res.Rows,
		RecordsEmitted: res.Emitted,
		RowsSkipped:    res.Skipped,
		Success:        res.Err == nil,
	}
	if res.Err != nil {
		run.ErrorKind = sql.NullString{String: res.Kind(), Valid: true}
		run.ErrorMessage = sql.NullString{String: res.Err.Error(), Valid: true}
	}
	if err := s.store.RecordFetchRun(run); err != nil {
		log.Printf("api: record fetch run %s: %v", res.Source, err)
	}
}
