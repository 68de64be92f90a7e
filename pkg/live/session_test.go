package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/enhance"
	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

func waitIdle(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))
}

func TestSession_AddPhraseCreatesPendingItems(t *testing.T) {
	clock := newFakeClock()
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, clock)
	defer s.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := s.AddPhrase(phrase(phrases.CategoryActionItem, fmt.Sprintf("task %d", i), int64(i*1000)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	items := s.Items(ItemFilter{})
	require.Len(t, items, 5)
	for i, it := range items {
		assert.Equal(t, ids[i], it.ID, "items keep detection order")
		assert.Equal(t, StatusPending, it.Status)
		assert.False(t, it.IsEnhancing)
		assert.False(t, it.IsEnhanced)
		assert.Nil(t, it.EnhancedContent)
		assert.Equal(t, int64(1), it.Version)
	}

	assert.Equal(t, 0, gate.callCount())
	assert.False(t, s.IsEnhancing())
	assert.Equal(t, 5, s.Stats().Queued)
}

func TestSession_AddPhraseAppliesLocalHeuristics(t *testing.T) {
	s := newTestSession(newGateEnhancer(nil), newFakeClock())
	defer s.Close()

	p := phrase(phrases.CategoryActionItem, "send the deck by Friday", 0)
	p.ExtractedOwner = "Priya"
	p.ExtractedDeadline = "Friday"

	id, err := s.AddPhrase(p)
	require.NoError(t, err)

	it, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Priya", it.Owner)
	assert.Equal(t, "Friday", it.DueDate)
	assert.Equal(t, phrases.DefaultPriority, it.Priority)
	assert.Equal(t, phrases.DefaultConfidence, it.Confidence)
	assert.Equal(t, "send the deck by Friday", it.DisplayContent())
}

func TestSession_DebounceWaitsForQuietPeriod(t *testing.T) {
	clock := newFakeClock()
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, clock)
	defer s.Close()

	_, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "one", 0))
	require.NoError(t, err)
	clock.Advance(500 * time.Millisecond)
	_, err = s.AddPhrase(phrase(phrases.CategoryDecision, "two", 500))
	require.NoError(t, err)
	clock.Advance(500 * time.Millisecond)
	_, err = s.AddPhrase(phrase(phrases.CategoryQuestion, "three", 1000))
	require.NoError(t, err)

	assert.Equal(t, 1, clock.pendingTimers(), "each add replaces the timer")

	clock.Advance(1999 * time.Millisecond)
	st := s.Stats()
	assert.Equal(t, 3, st.Queued, "nothing drains before t=3000")
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, 0, gate.callCount())

	clock.Advance(time.Millisecond)
	st = s.Stats()
	assert.Equal(t, 0, st.Queued)
	assert.Equal(t, 3, st.Active)
	assert.True(t, s.IsEnhancing())
	for _, it := range s.Items(ItemFilter{}) {
		assert.True(t, it.IsEnhancing)
	}

	gate.release(3)
	waitIdle(t, s)
	assert.Equal(t, 3, gate.callCount())
	assert.False(t, s.IsEnhancing())
}

func TestSession_ConcurrencyBound(t *testing.T) {
	clock := newFakeClock()
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, clock)
	defer s.Close()

	for i := 0; i < 7; i++ {
		_, err := s.AddPhrase(phrase(phrases.CategoryActionItem, fmt.Sprintf("task %d", i), int64(i)))
		require.NoError(t, err)
	}
	clock.Advance(2 * time.Second)

	st := s.Stats()
	assert.Equal(t, 3, st.Active)
	assert.Equal(t, 4, st.Queued)

	// Completions keep the drain going without another debounce.
	for i := 0; i < 7; i++ {
		gate.release(1)
		time.Sleep(5 * time.Millisecond)
		assert.LessOrEqual(t, s.Stats().Active, 3)
	}
	waitIdle(t, s)

	assert.Equal(t, 7, gate.callCount())
	assert.LessOrEqual(t, int(gate.maxSeen), 3)
	for _, it := range s.Items(ItemFilter{}) {
		assert.True(t, it.IsEnhanced, it.Phrase.Content)
	}
}

func TestSession_FailureIsolation(t *testing.T) {
	failing := instantEnhancer{respond: func(req *enhance.Request) (*enhance.Result, error) {
		if req.Content == "two" {
			return nil, plerrors.NewEnhanceError(plerrors.ErrBadStatus, "instant", "500 from upstream", nil)
		}
		return enhancedResult(req)
	}}
	s := newTestSession(failing, newFakeClock())
	defer s.Close()

	var ids []string
	for _, c := range []string{"one", "two", "three"} {
		id, err := s.AddPhrase(phrase(phrases.CategoryActionItem, c, 0))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	s.Flush()
	waitIdle(t, s)

	first, _ := s.Get(ids[0])
	second, _ := s.Get(ids[1])
	third, _ := s.Get(ids[2])

	assert.True(t, first.IsEnhanced)
	assert.Equal(t, "Enhanced: one", first.DisplayContent())
	assert.True(t, third.IsEnhanced)

	assert.False(t, second.IsEnhanced)
	assert.False(t, second.IsEnhancing)
	assert.Nil(t, second.EnhancedContent)
	assert.Equal(t, "two", second.DisplayContent())
	assert.Equal(t, string(plerrors.ErrBadStatus), second.EnhanceError)
	assert.Equal(t, int64(1), second.Version)
}

func TestSession_EnhancementMergesFields(t *testing.T) {
	s := newTestSession(instantEnhancer{respond: enhancedResult}, newFakeClock())
	defer s.Close()

	p := phrase(phrases.CategoryActionItem, "ship it", 0)
	p.ExtractedDeadline = "Friday"
	id, err := s.AddPhrase(p)
	require.NoError(t, err)
	s.Flush()
	waitIdle(t, s)

	it, _ := s.Get(id)
	assert.Equal(t, "Sam", it.Owner)
	assert.Equal(t, phrases.PriorityHigh, it.Priority)
	assert.Equal(t, "Friday", it.DueDate, "local deadline survives when remote has none")
	assert.Equal(t, 0.9, it.Confidence)
	assert.Equal(t, int64(2), it.Version)
	assert.Empty(t, it.EnhanceError)
}

func TestSession_ConfirmDismissLastWriteWins(t *testing.T) {
	s := newTestSession(instantEnhancer{respond: enhancedResult}, newFakeClock())
	defer s.Close()

	id, err := s.AddPhrase(phrase(phrases.CategoryDecision, "go with plan B", 0))
	require.NoError(t, err)

	require.NoError(t, s.Confirm(id))
	require.NoError(t, s.Confirm(id))
	it, _ := s.Get(id)
	assert.Equal(t, StatusConfirmed, it.Status)
	assert.Equal(t, int64(2), it.Version, "repeated confirm is a no-op")

	require.NoError(t, s.Dismiss(id))
	s.Flush()
	waitIdle(t, s)

	it, _ = s.Get(id)
	assert.Equal(t, StatusDismissed, it.Status, "enhancement never changes status")
	assert.True(t, it.IsEnhanced)

	assert.Empty(t, s.Items(ItemFilter{}))
	assert.Len(t, s.Items(ItemFilter{IncludeDismissed: true}), 1)
	assert.Len(t, s.Items(ItemFilter{Status: StatusDismissed}), 1)

	err = s.Confirm("missing")
	assert.True(t, plerrors.IsNotFound(err))
}

func TestSession_UpdateAfterEnhancement(t *testing.T) {
	s := newTestSession(instantEnhancer{respond: enhancedResult}, newFakeClock())
	defer s.Close()

	id, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "review budget", 0))
	require.NoError(t, err)
	s.Flush()
	waitIdle(t, s)

	owner := "Alex"
	it, err := s.Update(id, ItemPatch{Owner: &owner})
	require.NoError(t, err)
	assert.Equal(t, "Alex", it.Owner)
	assert.Equal(t, []string{FieldOwner}, it.EditedFields)
	assert.True(t, it.IsEnhanced)

	bad := "someday"
	_, err = s.Update(id, ItemPatch{Priority: &bad})
	assert.True(t, plerrors.IsValidation(err))

	low := "LOW"
	it, err = s.Update(id, ItemPatch{Priority: &low})
	require.NoError(t, err)
	assert.Equal(t, phrases.PriorityLow, it.Priority)

	content := "Review Q3 budget with finance"
	it, err = s.Update(id, ItemPatch{EnhancedContent: &content})
	require.NoError(t, err)
	assert.Equal(t, content, it.DisplayContent())

	_, err = s.Update("missing", ItemPatch{Owner: &owner})
	assert.True(t, plerrors.IsNotFound(err))
}

func TestSession_EditedFieldSurvivesEnhancement(t *testing.T) {
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, newFakeClock())
	defer s.Close()

	id, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "draft the memo", 0))
	require.NoError(t, err)
	s.Flush()

	owner := "Alex"
	_, err = s.Update(id, ItemPatch{Owner: &owner})
	require.NoError(t, err)

	gate.release(1)
	waitIdle(t, s)

	it, _ := s.Get(id)
	assert.Equal(t, "Alex", it.Owner, "user edit wins over the response")
	assert.Equal(t, phrases.PriorityHigh, it.Priority, "unedited fields take the response")
	assert.True(t, it.IsEnhanced)
}

func TestSession_LateResponseAfterRemoveIsDropped(t *testing.T) {
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, newFakeClock())
	defer s.Close()

	keep, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "keep", 0))
	require.NoError(t, err)
	drop, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "drop", 0))
	require.NoError(t, err)
	s.Flush()

	require.NoError(t, s.Remove(drop))
	assert.True(t, plerrors.IsNotFound(s.Remove(drop)))

	gate.release(2)
	waitIdle(t, s)

	_, ok := s.Get(drop)
	assert.False(t, ok)
	items := s.Items(ItemFilter{})
	require.Len(t, items, 1)
	assert.Equal(t, keep, items[0].ID)
	assert.True(t, items[0].IsEnhanced)
}

func TestSession_LateResponseAfterResetIsDropped(t *testing.T) {
	clock := newFakeClock()
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, clock)
	defer s.Close()

	for i := 0; i < 5; i++ {
		_, err := s.AddPhrase(phrase(phrases.CategoryRisk, fmt.Sprintf("risk %d", i), 0))
		require.NoError(t, err)
	}
	s.Flush()
	_, err := s.AddPhrase(phrase(phrases.CategoryRisk, "queued behind the timer", 0))
	require.NoError(t, err)

	s.Reset()
	assert.Equal(t, 0, clock.pendingTimers(), "reset stops the debounce timer")

	gate.release(3)
	waitIdle(t, s)

	st := s.Stats()
	assert.Equal(t, 0, st.Total)
	assert.Equal(t, 0, st.Queued)
	assert.Equal(t, 3, gate.callCount(), "queued items are dropped by reset")
}

func TestSession_Retry(t *testing.T) {
	var mu sync.Mutex
	fail := true
	e := instantEnhancer{respond: func(req *enhance.Request) (*enhance.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, plerrors.NewEnhanceError(plerrors.ErrUnavailable, "instant", "down", nil)
		}
		return enhancedResult(req)
	}}
	clock := newFakeClock()
	s := newTestSession(e, clock)
	defer s.Close()

	id, err := s.AddPhrase(phrase(phrases.CategoryFollowup, "circle back with legal", 0))
	require.NoError(t, err)
	s.Flush()
	waitIdle(t, s)

	it, _ := s.Get(id)
	assert.False(t, it.IsEnhanced)
	assert.Equal(t, string(plerrors.ErrUnavailable), it.EnhanceError)

	mu.Lock()
	fail = false
	mu.Unlock()

	require.NoError(t, s.Retry(id))
	assert.Equal(t, 1, s.Stats().Queued, "retry waits out the debounce")
	clock.Advance(2 * time.Second)
	waitIdle(t, s)

	it, _ = s.Get(id)
	assert.True(t, it.IsEnhanced)
	assert.Empty(t, it.EnhanceError)

	assert.True(t, plerrors.IsNotFound(s.Retry("missing")))
}

func TestSession_RetryRejectsQueuedItem(t *testing.T) {
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, newFakeClock())
	defer s.Close()

	id, err := s.AddPhrase(phrase(phrases.CategoryQuestion, "who owns this?", 0))
	require.NoError(t, err)
	assert.True(t, plerrors.IsInvalidState(s.Retry(id)), "still waiting out the debounce")

	s.Flush()
	assert.True(t, plerrors.IsInvalidState(s.Retry(id)), "in flight")

	gate.release(1)
	waitIdle(t, s)
}

func TestSession_RetryKeepsNewDetectionsBehindDebounce(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	failed := false
	gate := newGateEnhancer(func(req *enhance.Request) (*enhance.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if !failed {
			failed = true
			return nil, plerrors.NewEnhanceError(plerrors.ErrUnavailable, "gate", "down", nil)
		}
		return enhancedResult(req)
	})
	s := newTestSession(gate, clock)
	defer s.Close()

	first, err := s.AddPhrase(phrase(phrases.CategoryRisk, "vendor might slip", 0))
	require.NoError(t, err)
	s.Flush()
	gate.release(1)
	waitIdle(t, s)

	_, err = s.AddPhrase(phrase(phrases.CategoryDecision, "go with plan B", 1000))
	require.NoError(t, err)
	_, err = s.AddPhrase(phrase(phrases.CategoryQuestion, "who signs off?", 1100))
	require.NoError(t, err)

	clock.Advance(100 * time.Millisecond)
	require.NoError(t, s.Retry(first))

	st := s.Stats()
	assert.Equal(t, 3, st.Queued)
	assert.Equal(t, 0, st.Active)
	assert.Equal(t, 1, gate.callCount())

	clock.Advance(1900 * time.Millisecond)
	assert.Equal(t, 3, s.Stats().Queued, "retry restarted the quiet period")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 3, s.Stats().Active)
	gate.release(3)
	waitIdle(t, s)

	it, _ := s.Get(first)
	assert.True(t, it.IsEnhanced)
	assert.Equal(t, 4, gate.callCount())
}

// manualClock hands out timers whose callbacks the test runs by hand, even
// after Stop.
type manualClock struct {
	*fakeClock
	callbacks []func()
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.callbacks = append(c.callbacks, f)
	return c.fakeClock.AfterFunc(d, func() {})
}

func TestSession_SupersededDebounceCallbackIsIgnored(t *testing.T) {
	clock := &manualClock{fakeClock: newFakeClock()}
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, clock)
	defer s.Close()

	_, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "send the notes", 0))
	require.NoError(t, err)
	_, err = s.AddPhrase(phrase(phrases.CategoryActionItem, "book the room", 500))
	require.NoError(t, err)
	require.Len(t, clock.callbacks, 2)

	// The first timer fired just as the second AddPhrase replaced it.
	clock.callbacks[0]()
	assert.Equal(t, 2, s.Stats().Queued)
	assert.Equal(t, 0, gate.callCount())

	clock.callbacks[1]()
	assert.Equal(t, 2, s.Stats().Active)
	gate.release(2)
	waitIdle(t, s)
}

func TestSession_IngestSegment(t *testing.T) {
	s := newTestSession(newGateEnhancer(nil), newFakeClock())
	defer s.Close()

	ids, err := s.IngestSegment("Jordan", "I'll follow up with finance by Friday", 12000)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	it, _ := s.Get(ids[0])
	assert.Equal(t, phrases.CategoryActionItem, it.Phrase.Category)
	assert.Equal(t, int64(12000), it.Phrase.TimestampMs)
	assert.Equal(t, "Jordan", it.Phrase.Speaker)
	assert.Equal(t, "Jordan", it.Owner)
	assert.Equal(t, "Friday", it.DueDate)

	ids, err = s.IngestSegment("Jordan", "nothing to see here", 13000)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSession_GroupedFollowsCategoryOrder(t *testing.T) {
	s := newTestSession(newGateEnhancer(nil), newFakeClock())
	defer s.Close()

	_, err := s.AddPhrase(phrase(phrases.CategoryQuestion, "q1", 0))
	require.NoError(t, err)
	_, err = s.AddPhrase(phrase(phrases.CategoryActionItem, "a1", 1))
	require.NoError(t, err)
	dismissed, err := s.AddPhrase(phrase(phrases.CategoryRisk, "r1", 2))
	require.NoError(t, err)
	_, err = s.AddPhrase(phrase(phrases.CategoryActionItem, "a2", 3))
	require.NoError(t, err)
	require.NoError(t, s.Dismiss(dismissed))

	groups := s.Grouped()
	require.Len(t, groups, 2)
	assert.Equal(t, phrases.CategoryActionItem, groups[0].Category)
	assert.Equal(t, "Action Items", groups[0].Label)
	assert.Len(t, groups[0].Items, 2)
	assert.Equal(t, phrases.CategoryQuestion, groups[1].Category)

	st := s.Stats()
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 3, st.Pending)
	assert.Equal(t, 1, st.Dismissed)
	assert.Equal(t, 2, st.ByCategory[phrases.CategoryActionItem])
}

func TestSession_EventsInMutationOrder(t *testing.T) {
	s := newTestSession(instantEnhancer{respond: enhancedResult}, newFakeClock())
	defer s.Close()

	var mu sync.Mutex
	var got []EventType
	unsubscribe := s.Subscribe(ListenerFunc(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	}))
	defer unsubscribe()

	id, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "x", 0))
	require.NoError(t, err)
	s.Flush()
	waitIdle(t, s)
	require.NoError(t, s.Confirm(id))
	require.NoError(t, s.Remove(id))
	s.Reset()

	want := []EventType{EventItemDetected, EventItemEnhanced, EventItemUpdated, EventItemRemoved, EventSessionReset}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, want, got)
	mu.Unlock()
}

func TestSession_CloseCancelsInFlight(t *testing.T) {
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, newFakeClock())

	id, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "pending work", 0))
	require.NoError(t, err)
	s.Flush()
	s.Close()
	s.Close()

	assert.Eventually(t, func() bool { return !s.IsEnhancing() }, 2*time.Second, 10*time.Millisecond)
	it, _ := s.Get(id)
	assert.Equal(t, string(plerrors.ErrCanceled), it.EnhanceError)

	_, err = s.AddPhrase(phrase(phrases.CategoryActionItem, "too late", 0))
	assert.True(t, plerrors.IsSessionClosed(err))
	assert.True(t, plerrors.IsSessionClosed(s.Retry(id)))
}

func TestSession_WaitIdleHonoursContext(t *testing.T) {
	gate := newGateEnhancer(nil)
	s := newTestSession(gate, newFakeClock())
	defer s.Close()

	_, err := s.AddPhrase(phrase(phrases.CategoryActionItem, "stuck", 0))
	require.NoError(t, err)
	s.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = s.WaitIdle(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	gate.release(1)
	waitIdle(t, s)
}
