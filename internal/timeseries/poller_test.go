package timeseries

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var horizon = time.Date(2020, 1, 10, 0, 0, 0, 0, time.UTC)

// stepRunner advances its watermark by step per run.
type stepRunner struct {
	mu        sync.Mutex
	watermark time.Time
	step      time.Duration
	err       error

	block    chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
}

func (r *stepRunner) Run(ctx context.Context) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		m := r.maxSeen.Load()
		if n <= m || r.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	r.calls.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	r.watermark = r.watermark.Add(r.step)
	r.mu.Unlock()
	return r.err
}

func (r *stepRunner) Watermark() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.watermark
}

func (r *stepRunner) Until() time.Time { return horizon }

func runPoller(t *testing.T, ctx context.Context, p *Poller) error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not return")
		return nil
	}
}

func TestPoller_StopsAtHorizonAfterCatchUp(t *testing.T) {
	r := &stepRunner{watermark: horizon.Add(-time.Hour), step: time.Hour}
	// A long interval proves the first run happens immediately.
	p := NewPoller("tides", r, time.Hour)

	if err := runPoller(t, context.Background(), p); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if p.Runs() != 1 {
		t.Errorf("Runs = %d, want 1", p.Runs())
	}
	select {
	case <-p.Done():
	default:
		t.Error("Done should be closed once the horizon is reached")
	}
}

func TestPoller_PollsUntilHorizon(t *testing.T) {
	r := &stepRunner{watermark: horizon.Add(-3 * time.Hour), step: time.Hour}
	p := NewPoller("waves", r, 5*time.Millisecond)

	if err := runPoller(t, context.Background(), p); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if p.Runs() != 3 {
		t.Errorf("Runs = %d, want 3", p.Runs())
	}
}

func TestPoller_RunErrorsDoNotStopPolling(t *testing.T) {
	r := &stepRunner{watermark: horizon.Add(-2 * time.Hour), step: time.Hour, err: errors.New("sink write failed")}
	p := NewPoller("waves", r, 5*time.Millisecond)

	if err := runPoller(t, context.Background(), p); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if p.Runs() != 2 {
		t.Errorf("Runs = %d, want 2", p.Runs())
	}
}

func TestPoller_CancelReturnsContextError(t *testing.T) {
	r := &stepRunner{watermark: horizon.Add(-1000 * time.Hour), step: time.Nanosecond}
	p := NewPoller("tides", r, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := runPoller(t, ctx, p)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run = %v, want context.DeadlineExceeded", err)
	}
	select {
	case <-p.Done():
		t.Error("Done should stay open when the session is closed externally")
	default:
	}
}

func TestPoller_SkipsTicksWhileRunInFlight(t *testing.T) {
	block := make(chan struct{})
	r := &stepRunner{watermark: horizon.Add(-time.Hour), step: time.Hour, block: block}
	p := NewPoller("tides", r, 2*time.Millisecond)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(block)
	}()

	if err := runPoller(t, context.Background(), p); err != nil {
		t.Fatalf("Run = %v, want nil", err)
	}
	if got := r.maxSeen.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
	if got := r.calls.Load(); got != 1 {
		t.Errorf("runs started = %d, want 1", got)
	}
}
