package client

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often the poller refreshes while watching.
const DefaultPollInterval = 10 * time.Second

// Ticker abstracts time.Ticker so tests can drive ticks with a fake clock.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock creates tickers. The zero-dependency production implementation wraps
// the time package.
type Clock interface {
	NewTicker(d time.Duration) Ticker
}

type realClock struct{}

func (realClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time {
	return r.t.C
}

func (r realTicker) Stop() {
	r.t.Stop()
}

// Poller drives periodic silent refreshes of the conversation list and the
// open thread while the live-sync toggle is on. It has two states, idle and
// watching; there is no backoff, and a failed tick never stops the loop.
type Poller struct {
	store    *ConversationStore
	threads  *ThreadLoader
	interval time.Duration
	clock    Clock

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	watching bool
}

// NewPoller creates a new Poller refreshing at the given interval. A zero
// interval falls back to the default.
func NewPoller(store *ConversationStore, threads *ThreadLoader, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		store:    store,
		threads:  threads,
		interval: interval,
		clock:    realClock{},
	}
}

// WithClock substitutes the ticker source, for tests.
func (p *Poller) WithClock(clock Clock) *Poller {
	p.clock = clock
	return p
}

// Watching reports whether the poller is running.
func (p *Poller) Watching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watching
}

// Start begins periodic refreshing. Starting an already watching poller is a
// no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watching {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.watching = true
	go p.run(ctx, p.done)
}

// Stop cancels the timer and waits for the loop to exit, so no refresh fires
// after Stop returns. Stopping an idle poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.watching {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.watching = false
	p.mu.Unlock()

	cancel()
	<-done
}

// run ticks until cancelled. Ticks execute sequentially: a tick that outlives
// its interval is followed by the next one, never overlapped by it.
func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.tick(ctx)
		}
	}
}

// tick refreshes the conversation list and, when a conversation is open, its
// thread. Both are silent; failures are swallowed.
func (p *Poller) tick(ctx context.Context) {
	_ = p.store.Refresh(ctx, true)
	if selected := p.store.Selected(); selected != nil {
		_ = p.threads.Load(ctx, selected.ID, true)
	}
}
