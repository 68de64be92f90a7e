package live

import (
	"fmt"
	"strings"

	plerrors "github.com/otherjamesbrown/penf-live/pkg/errors"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// Confirm marks an item confirmed.
func (s *Session) Confirm(id string) error {
	return s.setStatus(id, StatusConfirmed, "confirm")
}

// Dismiss marks an item dismissed. Dismissed items stay in the store but are
// hidden from the default views.
func (s *Session) Dismiss(id string) error {
	return s.setStatus(id, StatusDismissed, "dismiss")
}

func (s *Session) setStatus(id string, st Status, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: item %s", plerrors.ErrNotFound, id)
	}
	if it.Status == st {
		return nil
	}

	prev := it.clone()
	it.Status = st
	s.touchLocked(it)
	s.metrics.RecordItemAction(action)
	s.emitLocked(EventItemUpdated, it, &prev, 0, false)
	return nil
}

// Remove deletes an item. A response still in flight for it is discarded.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.positionLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: item %s", plerrors.ErrNotFound, id)
	}
	it := s.items[idx]
	s.deleteAtLocked(idx)
	s.metrics.RecordItemAction("remove")
	s.emitLocked(EventItemRemoved, it, nil, idx, false)
	s.notifyIdleLocked()
	return nil
}

// Update applies a user edit. Patched fields are remembered and later
// enhancement responses leave them alone.
func (s *Session) Update(id string, patch ItemPatch) (Item, error) {
	var priority phrases.Priority
	if patch.Priority != nil {
		p, err := phrases.ParsePriority(*patch.Priority)
		if err != nil {
			return Item{}, err
		}
		if p == "" {
			return Item{}, fmt.Errorf("%w: priority must be low, medium or high", plerrors.ErrValidation)
		}
		priority = p
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: item %s", plerrors.ErrNotFound, id)
	}
	if patch.IsEmpty() {
		return it.clone(), nil
	}

	prev := it.clone()
	if patch.EnhancedContent != nil {
		v := strings.TrimSpace(*patch.EnhancedContent)
		if v == "" {
			it.EnhancedContent = nil
		} else {
			it.EnhancedContent = &v
		}
		it.markEdited(FieldEnhancedContent)
	}
	if patch.Owner != nil {
		it.Owner = strings.TrimSpace(*patch.Owner)
		it.markEdited(FieldOwner)
	}
	if patch.Priority != nil {
		it.Priority = priority
		it.markEdited(FieldPriority)
	}
	if patch.DueDate != nil {
		it.DueDate = strings.TrimSpace(*patch.DueDate)
		it.markEdited(FieldDueDate)
	}
	s.touchLocked(it)
	s.metrics.RecordItemAction("update")
	s.emitLocked(EventItemUpdated, it, &prev, 0, false)
	return it.clone(), nil
}

// Reset clears every item and the pending queue. In-flight calls finish and
// their results are dropped.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTimerLocked()
	s.metrics.AddQueueDepth(observability.QueueStatePending, -float64(len(s.pending)))
	s.items = nil
	s.index = make(map[string]*Item)
	s.pending = nil
	s.queued = make(map[string]bool)
	s.metrics.RecordItemAction("reset")
	s.emitLocked(EventSessionReset, nil, nil, 0, false)
	s.notifyIdleLocked()
}

func (s *Session) touchLocked(it *Item) {
	it.Version++
	it.UpdatedAt = s.clock.Now()
}

func (s *Session) positionLocked(id string) int {
	for i, it := range s.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) deleteAtLocked(idx int) {
	it := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	delete(s.index, it.ID)
	if s.queued[it.ID] {
		// The stale queue entry is skipped at drain time.
		delete(s.queued, it.ID)
	}
}

// Items returns copies of the items matching f, in detection order.
func (s *Session) Items(f ItemFilter) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if f.match(it) {
			out = append(out, it.clone())
		}
	}
	return out
}

// Grouped returns the non-dismissed items grouped by category. Groups follow
// the matcher's category order and empty groups are omitted.
func (s *Session) Grouped() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCategory := make(map[phrases.Category][]Item)
	for _, it := range s.items {
		if it.Status == StatusDismissed {
			continue
		}
		byCategory[it.Phrase.Category] = append(byCategory[it.Phrase.Category], it.clone())
	}

	groups := make([]Group, 0, len(byCategory))
	for _, c := range s.matcher.Categories() {
		items, ok := byCategory[c]
		if !ok {
			continue
		}
		groups = append(groups, Group{Category: c, Label: c.Label(), Items: items})
		delete(byCategory, c)
	}
	// Items added through AddPhrase may carry categories outside a custom
	// rule table; they go last in the global category order.
	for _, c := range phrases.Categories() {
		if items, ok := byCategory[c]; ok {
			groups = append(groups, Group{Category: c, Label: c.Label(), Items: items})
		}
	}
	return groups
}

// Get returns a copy of one item.
func (s *Session) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index[id]
	if !ok {
		return Item{}, false
	}
	return it.clone(), true
}

// Stats summarizes the session's items and queue.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:      len(s.items),
		ByCategory: make(map[phrases.Category]int),
		Queued:     len(s.pending),
		Active:     s.active,
		Enhancing:  s.active > 0,
	}
	for _, it := range s.items {
		switch it.Status {
		case StatusPending:
			st.Pending++
		case StatusConfirmed:
			st.Confirmed++
		case StatusDismissed:
			st.Dismissed++
		}
		if it.IsEnhanced {
			st.Enhanced++
		}
		st.ByCategory[it.Phrase.Category]++
	}
	return st
}

// rollbackInsert removes an item whose insert could not be persisted.
func (s *Session) rollbackInsert(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.positionLocked(id)
	if idx < 0 {
		return false
	}
	it := s.items[idx]
	s.deleteAtLocked(idx)
	s.emitLocked(EventItemRemoved, it, nil, idx, true)
	s.notifyIdleLocked()
	return true
}

// rollbackDelete puts a removed item back at its original position, or at the
// end if the store has shrunk since.
func (s *Session) rollbackDelete(snapshot Item, index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, exists := s.index[snapshot.ID]; exists {
		return false
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.items) {
		index = len(s.items)
	}

	it := snapshot.clone()
	it.IsEnhancing = false
	s.items = append(s.items, nil)
	copy(s.items[index+1:], s.items[index:])
	s.items[index] = &it
	s.index[it.ID] = &it
	s.emitLocked(EventItemRestored, &it, nil, index, true)
	return true
}

// rollbackUpdate reverts an item to prev if nothing has changed it since the
// failed write was issued. It reports whether the revert happened.
func (s *Session) rollbackUpdate(prev Item, expectedVersion int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index[prev.ID]
	if !ok || it.Version != expectedVersion {
		return false
	}

	failed := it.clone()
	reverted := prev.clone()
	reverted.IsEnhancing = it.IsEnhancing
	reverted.Version = it.Version + 1
	reverted.UpdatedAt = s.clock.Now()
	*it = reverted
	s.emitLocked(EventItemUpdated, it, &failed, 0, true)
	return true
}
