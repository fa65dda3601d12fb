package erddap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lox/marinestream/internal/httputil"
	"github.com/lox/marinestream/internal/models"
)

// Client fetches tabledap JSON pages.
type Client struct {
	client *http.Client
	// retryMax bounds the time spent retrying rate-limited requests. Zero
	// disables retries so a failed page is reported after one attempt.
	retryMax time.Duration
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

func WithRetry(maxElapsed time.Duration) Option {
	return func(cl *Client) { cl.retryMax = maxElapsed }
}

func NewClient(opts ...Option) *Client {
	c := &Client{client: httputil.NewClient(0)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type response struct {
	Table *struct {
		ColumnNames []string `json:"columnNames"`
		Rows        [][]any  `json:"rows"`
	} `json:"table"`
}

// FetchPage requests url and decodes the tabledap table. Errors wrap
// models.ErrFetchFailure or models.ErrParseFailure.
func (c *Client) FetchPage(ctx context.Context, url string) (*models.Table, error) {
	body, err := c.get(ctx, url)
	if errors.Is(err, errNoMatchingRows) {
		return &models.Table{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode(body)
}

// tabledap answers an empty constraint window with 404 and this message
// rather than an empty table.
var errNoMatchingRows = errors.New("no matching results")

const noMatchingRowsMessage = "Your query produced no matching results"

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: create request: %v", models.ErrFetchFailure, err))
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", models.ErrFetchFailure, err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			return fmt.Errorf("%w: rate limited: status %d", models.ErrFetchFailure, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			if resp.StatusCode == http.StatusNotFound && bytes.Contains(b, []byte(noMatchingRowsMessage)) {
				return backoff.Permanent(errNoMatchingRows)
			}
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", models.ErrFetchFailure, resp.StatusCode, bytes.TrimSpace(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: read body: %v", models.ErrFetchFailure, err))
		}
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if c.retryMax > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = c.retryMax
		bo = exp
	}
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return body, nil
}

// Decode parses a tabledap JSON body. Numbers keep their textual form.
func Decode(body []byte) (*models.Table, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var data response
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrParseFailure, err)
	}
	if data.Table == nil {
		return nil, fmt.Errorf("%w: missing table", models.ErrParseFailure)
	}
	if len(data.Table.ColumnNames) == 0 {
		return nil, fmt.Errorf("%w: missing column names", models.ErrParseFailure)
	}
	for i, row := range data.Table.Rows {
		if len(row) != len(data.Table.ColumnNames) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d",
				models.ErrParseFailure, i, len(row), len(data.Table.ColumnNames))
		}
	}
	return &models.Table{
		ColumnNames: data.Table.ColumnNames,
		Rows:        data.Table.Rows,
	}, nil
}
