package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lox/marinestream/internal/metrics"
	"github.com/lox/marinestream/internal/sink"
	"github.com/lox/marinestream/internal/timeseries"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sessionConfig resolves the source and request bounds, writing the error
// response itself when the request is rejected.
func (s *Server) sessionConfig(w http.ResponseWriter, r *http.Request) (timeseries.Config, bool) {
	name := mux.Vars(r)["name"]
	src, ok := s.catalog.Lookup(name)
	if !ok {
		http.Error(w, "unknown source "+name, http.StatusNotFound)
		return timeseries.Config{}, false
	}
	q, err := parseQuery(r.URL.Query(), src, s.opts.Now(), s.opts.DefaultSinceDays, s.opts.DefaultUntilDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return timeseries.Config{}, false
	}
	return timeseries.Config{
		Source:      src,
		Bounds:      q.Bounds,
		PageSpan:    s.opts.PageSpan,
		Granularity: q.Granularity,
		Fetcher:     s.fetcher,
		OnPage:      s.observePage,
	}, true
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.sessionConfig(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	cfg.Sink = sink.NewJSONLines(w)
	s.runOnce(r.Context(), cfg, "jsonl")
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.sessionConfig(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	cfg.Sink = sink.NewTabular(w)
	s.runOnce(r.Context(), cfg, "csv")
}

// runOnce performs a single retrieval run for a finite response.
func (s *Server) runOnce(ctx context.Context, cfg timeseries.Config, mode string) {
	metrics.ActiveSessions.WithLabelValues(mode).Inc()
	defer metrics.ActiveSessions.WithLabelValues(mode).Dec()

	engine := timeseries.NewEngine(cfg)
	if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("api: %s %s: %v", mode, cfg.Source.Name, err)
	}
}

// handleStream upgrades to a websocket and pushes records until the
// watermark reaches the requested horizon or the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.sessionConfig(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	c := &wsConn{conn: conn}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		c.readUntilClosed()
		cancel()
	}()

	metrics.ActiveSessions.WithLabelValues("push").Inc()
	defer metrics.ActiveSessions.WithLabelValues("push").Dec()

	cfg.Sink = sink.NewPush(c.write)
	engine := timeseries.NewEngine(cfg)
	poller := timeseries.NewPoller(cfg.Source.Name, engine, s.opts.PollInterval)
	if err := poller.Run(ctx); err != nil {
		return
	}
	log.Printf("api: %s: watermark %s reached horizon after %d runs, closing stream",
		cfg.Source.Name, engine.Watermark().Format(time.RFC3339), poller.Runs())
	c.close()
}

// wsConn serializes writes to one websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "complete")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) //nolint:errcheck
}

// readUntilClosed discards inbound messages and returns when the client
// disconnects.
func (c *wsConn) readUntilClosed() {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
