package live

import (
	"context"
	"time"

	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

// Store persists a session's items. storage.Repository is the Postgres
// implementation.
type Store interface {
	InsertItem(ctx context.Context, sessionID string, it Item) error
	UpdateItem(ctx context.Context, sessionID string, it Item) error
	DeleteItem(ctx context.Context, sessionID, itemID string) error
	DeleteSessionItems(ctx context.Context, sessionID string) error
}

// DefaultMirrorTimeout bounds each mirrored write.
const DefaultMirrorTimeout = 5 * time.Second

// Mirror copies session changes to a Store in the background. The session
// stays the source of truth: a failed write undoes the local change instead
// of blocking it.
type Mirror struct {
	session *Session
	store   Store
	logger  logging.Logger
	metrics *observability.LiveMetrics
	timeout time.Duration

	unsubscribe func()
	writes      *outbox[Event]
}

// AttachMirror subscribes a mirror to s. Writes are applied one at a time in
// event order.
func AttachMirror(s *Session, store Store, logger logging.Logger, metrics *observability.LiveMetrics) *Mirror {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	m := &Mirror{
		session: s,
		store:   store,
		logger:  logger.With(logging.F("component", "live_mirror"), logging.F("session_id", s.ID())),
		metrics: metrics,
		timeout: DefaultMirrorTimeout,
		writes:  newOutbox[Event](),
	}
	go m.writes.run(m.apply)
	m.unsubscribe = s.Subscribe(ListenerFunc(m.HandleEvent))
	return m
}

// HandleEvent queues the write for ev. Changes made by a rollback are not
// mirrored since the store never saw the write they undo.
func (m *Mirror) HandleEvent(ev Event) {
	if ev.Rollback {
		return
	}
	m.writes.push(ev)
}

func (m *Mirror) apply(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	sessionID := ev.SessionID
	switch ev.Type {
	case EventItemDetected:
		if err := m.store.InsertItem(ctx, sessionID, *ev.Item); err != nil {
			m.fail("insert", ev, err)
			m.session.rollbackInsert(ev.Item.ID)
		}

	case EventItemRemoved:
		if err := m.store.DeleteItem(ctx, sessionID, ev.Item.ID); err != nil {
			m.fail("delete", ev, err)
			m.session.rollbackDelete(*ev.Item, ev.Index)
		}

	case EventItemUpdated:
		if err := m.store.UpdateItem(ctx, sessionID, *ev.Item); err != nil {
			m.fail("update", ev, err)
			if ev.Previous != nil && !m.session.rollbackUpdate(*ev.Previous, ev.Item.Version) {
				m.logger.Debug("item changed since failed update, keeping newer state",
					logging.F("item_id", ev.Item.ID))
			}
		}

	case EventItemEnhanced:
		// An enhancement is not a user edit; a failed write is logged and
		// the next update of the item carries the fields again.
		if err := m.store.UpdateItem(ctx, sessionID, *ev.Item); err != nil {
			m.fail("enhance", ev, err)
		}

	case EventSessionReset:
		if err := m.store.DeleteSessionItems(ctx, sessionID); err != nil {
			m.fail("reset", ev, err)
		}
	}
}

func (m *Mirror) fail(op string, ev Event, err error) {
	m.metrics.RecordMirrorFailure(op)
	fields := []logging.Field{logging.F("operation", op), logging.Err(err)}
	if ev.Item != nil {
		fields = append(fields, logging.F("item_id", ev.Item.ID))
	}
	m.logger.Warn("mirror write failed", fields...)
}

// Close detaches the mirror and waits for queued writes to finish.
func (m *Mirror) Close() {
	m.unsubscribe()
	m.writes.close()
	m.writes.wait()
}
