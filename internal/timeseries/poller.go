package timeseries

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often a live session re-runs retrieval.
const DefaultPollInterval = 30 * time.Second

// Runner is the retrieval work a Poller repeats.
type Runner interface {
	Run(ctx context.Context) error
	Watermark() time.Time
	Until() time.Time
}

// Poller re-runs a Runner on a fixed interval until its watermark reaches
// the horizon. A tick that arrives while a run is still in flight is
// skipped.
type Poller struct {
	runner   Runner
	interval time.Duration
	name     string

	running  atomic.Bool
	runs     atomic.Int64
	stopOnce sync.Once
	done     chan struct{}
}

func NewPoller(name string, runner Runner, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		runner:   runner,
		interval: interval,
		name:     name,
		done:     make(chan struct{}),
	}
}

// Done is closed exactly once when the horizon is reached.
func (p *Poller) Done() <-chan struct{} { return p.done }

// Runs reports how many runs have completed.
func (p *Poller) Runs() int64 { return p.runs.Load() }

// Run performs an immediate catch-up run, then one run per interval. It
// returns nil once the watermark reaches the horizon, or ctx.Err() when the
// session is closed from outside. A run still in flight at cancellation is
// abandoned; it observes the cancelled context and emits nothing further.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	results := make(chan error, 1)
	p.start(ctx, results)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-results:
			p.running.Store(false)
			p.runs.Add(1)
			if err != nil && ctx.Err() == nil {
				log.Printf("poller: %s: run failed: %v", p.name, err)
			}
			if !p.runner.Watermark().Before(p.runner.Until()) {
				p.stop()
				return nil
			}
		case <-ticker.C:
			if !p.start(ctx, results) {
				log.Printf("poller: %s: previous run still in progress, skipping tick", p.name)
			}
		}
	}
}

func (p *Poller) start(ctx context.Context, results chan<- error) bool {
	if !p.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		results <- p.runner.Run(ctx)
	}()
	return true
}

func (p *Poller) stop() {
	p.stopOnce.Do(func() { close(p.done) })
}
