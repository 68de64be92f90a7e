package live

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/otherjamesbrown/penf-live/pkg/enhance"
	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// Default queue settings.
const (
	DefaultDebounce      = 2 * time.Second
	DefaultMaxConcurrent = 3
)

// Options configures a Session.
type Options struct {
	// ID identifies the session. A UUID is generated when empty.
	ID string

	// Title is a free-form label shown in listings.
	Title string

	// Matcher scans segments in IngestSegment. Defaults to the built-in rules.
	Matcher *phrases.Matcher

	// Enhancer is called once per queued item. Defaults to the offline provider.
	Enhancer enhance.Enhancer

	// Debounce is the quiet period after the last detection before the
	// queue drains. Zero drains on the next timer tick.
	Debounce time.Duration

	// MaxConcurrent caps in-flight enhancement calls. Defaults to 3.
	MaxConcurrent int

	Clock   Clock
	Logger  logging.Logger
	Metrics *observability.LiveMetrics
}

// Info describes a session for listings.
type Info struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type queued struct {
	itemID   string
	queuedAt time.Time
}

// Session is one live recording's item store and enhancement queue.
// All methods are safe for concurrent use.
type Session struct {
	info          Info
	matcher       *phrases.Matcher
	enhancer      enhance.Enhancer
	debounce      time.Duration
	maxConcurrent int
	clock         Clock
	logger        logging.Logger
	metrics       *observability.LiveMetrics
	tracer        *observability.Tracer

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	items     []*Item
	index     map[string]*Item
	pending   []queued
	queued    map[string]bool
	active    int
	timer     Timer
	timerGen  uint64
	closed    bool
	waiters   []chan struct{}
	listeners map[int]Listener
	nextID    int

	events *outbox[Event]
}

// NewSession creates a session and starts its event dispatcher.
func NewSession(opts Options) *Session {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if opts.Matcher == nil {
		opts.Matcher = phrases.MustNewMatcher()
	}
	if opts.Enhancer == nil {
		opts.Enhancer = enhance.NewLocalProvider()
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		info: Info{
			ID:        opts.ID,
			Title:     opts.Title,
			CreatedAt: opts.Clock.Now(),
		},
		matcher:       opts.Matcher,
		enhancer:      opts.Enhancer,
		debounce:      opts.Debounce,
		maxConcurrent: opts.MaxConcurrent,
		clock:         opts.Clock,
		logger:        opts.Logger.With(logging.F("component", "live_session"), logging.F("session_id", opts.ID)),
		metrics:       opts.Metrics,
		tracer:        observability.NewTracer(),
		ctx:           context.WithValue(ctx, logging.SessionIDKey, opts.ID),
		cancel:        cancel,
		index:         make(map[string]*Item),
		queued:        make(map[string]bool),
		listeners:     make(map[int]Listener),
		events:        newOutbox[Event](),
	}
	go s.events.run(s.dispatch)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.info.ID
}

// Info returns the session's listing metadata.
func (s *Session) Info() Info {
	return s.info
}

// Subscribe registers l for future events. The returned function unsubscribes.
func (s *Session) Subscribe(l Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) dispatch(ev Event) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Ints(ids)
	for _, id := range ids {
		s.mu.Lock()
		l, ok := s.listeners[id]
		s.mu.Unlock()
		if ok {
			l.HandleEvent(ev)
		}
	}
}

// emitLocked queues an event. Callers hold s.mu.
func (s *Session) emitLocked(typ EventType, it *Item, prev *Item, index int, rollback bool) {
	ev := Event{
		Type:      typ,
		SessionID: s.info.ID,
		Previous:  prev,
		Index:     index,
		Rollback:  rollback,
		At:        s.clock.Now(),
	}
	if it != nil {
		snap := it.clone()
		ev.Item = &snap
	}
	s.events.push(ev)
}

// AddPhrase stores a new pending item for p and queues it for enhancement.
// The item exists before any network activity starts.
func (s *Session) AddPhrase(p phrases.DetectedPhrase) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", plerrors.ErrSessionClosed
	}

	now := s.clock.Now()
	fields := enhance.Local(p)
	it := &Item{
		ID:         uuid.New().String(),
		SessionID:  s.info.ID,
		Phrase:     p,
		Owner:      fields.Owner,
		Priority:   fields.Priority,
		DueDate:    fields.DueDate,
		Confidence: fields.Confidence,
		Status:     StatusPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.items = append(s.items, it)
	s.index[it.ID] = it
	s.enqueueLocked(it.ID, now)
	s.metrics.RecordDetection(string(p.Category))
	s.emitLocked(EventItemDetected, it, nil, len(s.items)-1, false)

	s.resetTimerLocked()
	return it.ID, nil
}

// IngestSegment runs the matcher over one finalized utterance and adds every
// detection. It returns the new item IDs in category order.
func (s *Session) IngestSegment(speaker, text string, timestampMs int64) ([]string, error) {
	_, span := s.tracer.StartDetectSpan(s.ctx, s.info.ID)
	defer span.End()

	s.metrics.RecordSegment()
	detections := s.matcher.Detect(text, timestampMs)
	ids := make([]string, 0, len(detections))
	for _, d := range detections {
		id, err := s.AddPhrase(d.WithSpeaker(speaker))
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Session) enqueueLocked(id string, at time.Time) {
	s.pending = append(s.pending, queued{itemID: id, queuedAt: at})
	s.queued[id] = true
	s.metrics.AddQueueDepth(observability.QueueStatePending, 1)
}

func (s *Session) resetTimerLocked() {
	s.stopTimerLocked()
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(s.debounce, func() { s.onDebounce(gen) })
}

// stopTimerLocked also invalidates a callback that already fired and is
// waiting for the lock.
func (s *Session) stopTimerLocked() {
	s.timerGen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) onDebounce(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.timerGen {
		return
	}
	s.timer = nil
	s.drainLocked()
}

// Flush drains the queue now instead of waiting for the debounce.
func (s *Session) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.stopTimerLocked()
	s.drainLocked()
}

// drainLocked dispatches queued items until the concurrency bound is reached.
func (s *Session) drainLocked() {
	now := s.clock.Now()
	ctx := s.ctx
	var batch []*enhance.Request

	for s.active < s.maxConcurrent && len(s.pending) > 0 {
		q := s.pending[0]
		s.pending = s.pending[1:]
		delete(s.queued, q.itemID)
		s.metrics.AddQueueDepth(observability.QueueStatePending, -1)

		it, ok := s.index[q.itemID]
		if !ok {
			continue
		}

		it.IsEnhancing = true
		s.active++
		s.metrics.AddQueueDepth(observability.QueueStateInFlight, 1)
		s.metrics.RecordQueueWait(now.Sub(q.queuedAt).Seconds())
		batch = append(batch, enhance.NewRequest(it.ID, it.Phrase))
	}

	if len(batch) > 0 {
		drainCtx, drainSpan := s.tracer.StartDrainSpan(ctx, s.info.ID, len(batch))
		for _, req := range batch {
			go s.run(drainCtx, req)
		}
		drainSpan.End()
	}

	s.notifyIdleLocked()
}

func (s *Session) run(ctx context.Context, req *enhance.Request) {
	res, err := s.enhancer.Enhance(ctx, req)
	s.complete(req.ItemID, res, err)
}

// complete applies one enhancement outcome by item ID. Items removed or reset
// since dispatch are silently skipped.
func (s *Session) complete(id string, res *enhance.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active--
	s.metrics.AddQueueDepth(observability.QueueStateInFlight, -1)

	it, ok := s.index[id]
	switch {
	case !ok:
		s.logger.Debug("discarding enhancement for unknown item", logging.F("item_id", id))
	case err != nil:
		it.IsEnhancing = false
		it.EnhanceError = string(plerrors.ClassifyError(err, s.enhancer.Name()).Code)
		s.logger.Warn("enhancement failed",
			logging.F("item_id", id),
			logging.F("code", it.EnhanceError),
			logging.Err(err))
		s.emitLocked(EventItemEnhanceFailed, it, nil, 0, false)
	default:
		prev := it.clone()
		s.applyResultLocked(it, res)
		s.emitLocked(EventItemEnhanced, it, &prev, 0, false)
	}

	if !s.closed {
		s.drainLocked()
	} else {
		s.notifyIdleLocked()
	}
}

// applyResultLocked merges a response into it. Fields the user edited keep
// the user's value.
func (s *Session) applyResultLocked(it *Item, res *enhance.Result) {
	f := enhance.Merge(it.Phrase, res)

	if f.EnhancedContent != "" && !it.Edited(FieldEnhancedContent) {
		v := f.EnhancedContent
		it.EnhancedContent = &v
	}
	if !it.Edited(FieldOwner) {
		it.Owner = f.Owner
	}
	if !it.Edited(FieldPriority) {
		it.Priority = f.Priority
	}
	if !it.Edited(FieldDueDate) {
		it.DueDate = f.DueDate
	}
	it.Confidence = f.Confidence
	it.IsEnhancing = false
	it.IsEnhanced = true
	it.EnhanceError = ""
	it.Version++
	it.UpdatedAt = s.clock.Now()
}

// IsEnhancing reports whether any enhancement call is in flight.
func (s *Session) IsEnhancing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active > 0
}

func (s *Session) idleLocked() bool {
	return len(s.pending) == 0 && s.active == 0
}

func (s *Session) notifyIdleLocked() {
	if !s.idleLocked() {
		return
	}
	for _, ch := range s.waiters {
		close(ch)
	}
	s.waiters = nil
}

// WaitIdle blocks until the queue is empty and nothing is in flight. Items
// still waiting out the debounce count as queued.
func (s *Session) WaitIdle(ctx context.Context) error {
	s.mu.Lock()
	if s.idleLocked() {
		s.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for enhancement queue: %w", ctx.Err())
	}
}

// Retry queues an item for another enhancement attempt. Like a new
// detection it restarts the debounce. Nothing is ever retried automatically;
// this is the manual path.
func (s *Session) Retry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return plerrors.ErrSessionClosed
	}
	it, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: item %s", plerrors.ErrNotFound, id)
	}
	if it.IsEnhancing || s.queued[id] {
		return fmt.Errorf("%w: item %s is already queued or enhancing", plerrors.ErrInvalidState, id)
	}

	s.enqueueLocked(id, s.clock.Now())
	s.resetTimerLocked()
	return nil
}

// Close stops the timer, drops queued work and cancels in-flight calls, which
// complete as failures. Listeners receive events queued before Close.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopTimerLocked()
	s.metrics.AddQueueDepth(observability.QueueStatePending, -float64(len(s.pending)))
	s.pending = nil
	s.queued = make(map[string]bool)
	s.notifyIdleLocked()
	s.mu.Unlock()

	s.cancel()
	s.events.close()
	s.events.wait()

	s.mu.Lock()
	s.listeners = make(map[int]Listener)
	s.mu.Unlock()
}
