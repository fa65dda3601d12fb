package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/marinestream/internal/catalog"
)

type HealthStatus struct {
	Status  string         `json:"status"`
	Sources []SourceHealth `json:"sources"`
	Errors  []string       `json:"errors,omitempty"`
}

type SourceHealth struct {
	Name          string `json:"name"`
	FetchRuns     int    `json:"fetch_runs_24h"`
	FetchFailures int    `json:"fetch_failures_24h"`
	ParseFailures int    `json:"parse_failures_24h"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{Status: "ok"}
	byName := make(map[string]*SourceHealth)
	for _, name := range s.catalog.Names() {
		health.Sources = append(health.Sources, SourceHealth{Name: name})
	}
	for i := range health.Sources {
		byName[health.Sources[i].Name] = &health.Sources[i]
	}

	if s.store != nil {
		summaries, err := s.store.GetFetchHealth(1)
		if err != nil {
			health.Status = "error"
			health.Errors = append(health.Errors, err.Error())
		}
		for _, sum := range summaries {
			sh, ok := byName[sum.Source]
			if !ok {
				continue
			}
			sh.FetchRuns += sum.TotalRuns
			sh.FetchFailures += sum.FetchFailures
			sh.ParseFailures += sum.ParseFailures
			if sum.FetchFailures+sum.ParseFailures > 0 && health.Status == "ok" {
				health.Status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if health.Status == "error" {
		w.WriteHeader(http.StatusInternalServerError)
	}
	json.NewEncoder(w).Encode(health)
}

func (s *Server) handleAPISources(w http.ResponseWriter, r *http.Request) {
	sources := s.catalog.Sources()
	if sources == nil {
		sources = []catalog.Source{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sources)
}

type FetchError struct {
	Source    string    `json:"source"`
	StartedAt time.Time `json:"started_at"`
	PageStart time.Time `json:"page_start"`
	PageEnd   time.Time `json:"page_end"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
}

func (s *Server) handleAPIFetchErrors(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "fetch audit log disabled", http.StatusNotFound)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.store.GetRecentFetchErrors(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]FetchError, 0, len(runs))
	for _, run := range runs {
		out = append(out, FetchError{
			Source:    run.Source,
			StartedAt: run.StartedAt,
			PageStart: run.PageStart,
			PageEnd:   run.PageEnd,
			URL:       run.URL,
			Kind:      run.ErrorKind.String,
			Message:   run.ErrorMessage.String,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}
