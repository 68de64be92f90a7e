package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/phrases"
)

// fakeSessionStore records mirror calls in memory.
type fakeSessionStore struct {
	mu       sync.Mutex
	saved    []live.Info
	closed   []string
	inserted map[string][]string
	deleted  []string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{inserted: make(map[string][]string)}
}

func (f *fakeSessionStore) SaveSession(_ context.Context, info live.Info) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, info)
	return nil
}

func (f *fakeSessionStore) CloseSession(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	return nil
}

func (f *fakeSessionStore) InsertItem(_ context.Context, sessionID string, it live.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted[sessionID] = append(f.inserted[sessionID], it.ID)
	return nil
}

func (f *fakeSessionStore) UpdateItem(context.Context, string, live.Item) error { return nil }

func (f *fakeSessionStore) DeleteItem(_ context.Context, _ string, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, itemID)
	return nil
}

func (f *fakeSessionStore) DeleteSessionItems(context.Context, string) error { return nil }

func TestAttachMirrors_RecordsSessionLifecycle(t *testing.T) {
	store := newFakeSessionStore()
	manager := live.NewManager(live.Options{Debounce: time.Minute})
	attachMirrors(context.Background(), manager, store, logging.NewNopLogger(), nil)

	s, err := manager.Create("standup")
	require.NoError(t, err)

	id, err := s.AddPhrase(phrases.DetectedPhrase{
		Category:      phrases.CategoryActionItem,
		Content:       "I'll send the notes",
		TriggerPhrase: "I'll send",
	})
	require.NoError(t, err)

	require.NoError(t, manager.Close(s.ID()))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 1)
	assert.Equal(t, "standup", store.saved[0].Title)
	assert.Equal(t, []string{id}, store.inserted[s.ID()], "pending writes land before the session is recorded closed")
	assert.Equal(t, []string{s.ID()}, store.closed)
}

func TestAttachMirrors_CloseAll(t *testing.T) {
	store := newFakeSessionStore()
	manager := live.NewManager(live.Options{Debounce: time.Minute})
	attachMirrors(context.Background(), manager, store, logging.NewNopLogger(), nil)

	a, err := manager.Create("a")
	require.NoError(t, err)
	b, err := manager.Create("b")
	require.NoError(t, err)

	manager.CloseAll()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.ElementsMatch(t, []string{a.ID(), b.ID()}, store.closed)
}
