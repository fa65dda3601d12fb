package store

import (
	"database/sql"
	"time"
)

// Store keeps the audit log of upstream page fetches.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// FetchRun is the recorded outcome of one page fetch.
type FetchRun struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Source         string
	PageStart      time.Time
	PageEnd        time.Time
	URL            string
	RowsParsed     int
	RecordsEmitted int
	RowsSkipped    int
	Success        bool
	ErrorKind      sql.NullString // "fetch" or "parse"
	ErrorMessage   sql.NullString
}

// RecordFetchRun inserts a completed fetch run and sets its ID.
func (s *Store) RecordFetchRun(run *FetchRun) error {
	result, err := s.db.Exec(`
		INSERT INTO fetch_runs (started_at, finished_at, source, page_start, page_end, url,
			rows_parsed, records_emitted, rows_skipped, success, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Source, run.PageStart.UTC(), run.PageEnd.UTC(), run.URL,
		run.RowsParsed, run.RecordsEmitted, run.RowsSkipped, run.Success, run.ErrorKind, run.ErrorMessage)
	if err != nil {
		return err
	}
	run.ID, err = result.LastInsertId()
	return err
}

// GetRecentFetchErrors returns the most recent failed fetch runs, newest first.
func (s *Store) GetRecentFetchErrors(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, page_start, page_end, url,
			   rows_parsed, records_emitted, rows_skipped, success, error_kind, error_message
		FROM fetch_runs
		WHERE success = FALSE
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.PageStart, &r.PageEnd, &r.URL,
			&r.RowsParsed, &r.RecordsEmitted, &r.RowsSkipped, &r.Success, &r.ErrorKind, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// FetchHealthSummary aggregates fetch outcomes per day and source.
type FetchHealthSummary struct {
	Date           string
	Source         string
	TotalRuns      int
	SuccessRuns    int
	FetchFailures  int
	ParseFailures  int
	RecordsEmitted int64
}

// GetFetchHealth returns daily fetch summaries for the last N days.
func (s *Store) GetFetchHealth(days int) ([]FetchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			source,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN error_kind = 'fetch' THEN 1 ELSE 0 END) as fetch_failures,
			SUM(CASE WHEN error_kind = 'parse' THEN 1 ELSE 0 END) as parse_failures,
			COALESCE(SUM(records_emitted), 0) as records_emitted
		FROM fetch_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, source
		ORDER BY date DESC, source
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Source, &h.TotalRuns, &h.SuccessRuns,
			&h.FetchFailures, &h.ParseFailures, &h.RecordsEmitted); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}
