package live

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/enhance"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// Advance moves time forward and runs due timers in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// pendingTimers counts timers that can still fire.
func (c *fakeClock) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// gateEnhancer holds every call until released and tracks concurrency.
type gateEnhancer struct {
	gate    chan struct{}
	calls   int32
	active  int32
	maxSeen int32
	respond func(req *enhance.Request) (*enhance.Result, error)
}

func newGateEnhancer(respond func(req *enhance.Request) (*enhance.Result, error)) *gateEnhancer {
	if respond == nil {
		respond = enhancedResult
	}
	return &gateEnhancer{gate: make(chan struct{}, 64), respond: respond}
}

func (g *gateEnhancer) Name() string { return "gate" }

func (g *gateEnhancer) Enhance(ctx context.Context, req *enhance.Request) (*enhance.Result, error) {
	atomic.AddInt32(&g.calls, 1)
	n := atomic.AddInt32(&g.active, 1)
	for {
		prev := atomic.LoadInt32(&g.maxSeen)
		if n <= prev || atomic.CompareAndSwapInt32(&g.maxSeen, prev, n) {
			break
		}
	}
	defer atomic.AddInt32(&g.active, -1)

	select {
	case <-g.gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.respond(req)
}

// release lets n held calls finish.
func (g *gateEnhancer) release(n int) {
	for i := 0; i < n; i++ {
		g.gate <- struct{}{}
	}
}

func (g *gateEnhancer) callCount() int {
	return int(atomic.LoadInt32(&g.calls))
}

// instantEnhancer answers immediately.
type instantEnhancer struct {
	respond func(req *enhance.Request) (*enhance.Result, error)
}

func (e instantEnhancer) Name() string { return "instant" }

func (e instantEnhancer) Enhance(_ context.Context, req *enhance.Request) (*enhance.Result, error) {
	return e.respond(req)
}

func enhancedResult(req *enhance.Request) (*enhance.Result, error) {
	conf := 0.9
	return &enhance.Result{
		ItemID:          req.ItemID,
		EnhancedContent: "Enhanced: " + req.Content,
		Owner:           "Sam",
		Priority:        "high",
		Confidence:      &conf,
	}, nil
}

func phrase(category phrases.Category, content string, ts int64) phrases.DetectedPhrase {
	return phrases.DetectedPhrase{
		Category:      category,
		Content:       content,
		TriggerPhrase: content,
		FullContext:   content,
		TimestampMs:   ts,
		Rule:          "test",
		Confidence:    phrases.DefaultConfidence,
	}
}

func newTestSession(e enhance.Enhancer, clock Clock) *Session {
	return NewSession(Options{
		ID:            "test-session",
		Enhancer:      e,
		Debounce:      2 * time.Second,
		MaxConcurrent: 3,
		Clock:         clock,
	})
}
