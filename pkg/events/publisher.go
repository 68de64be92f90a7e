// Package events publishes live session changes to Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/otherjamesbrown/penf-live/pkg/live"
	"github.com/otherjamesbrown/penf-live/pkg/logging"
	"github.com/otherjamesbrown/penf-live/pkg/observability"
)

// DefaultChannelPrefix is prepended to per-session channel names.
const DefaultChannelPrefix = "penf-live"

// DefaultPublishTimeout bounds a single PUBLISH.
const DefaultPublishTimeout = 2 * time.Second

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent stamped with at.
func NewBaseEvent(eventType string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return BaseEvent{
		EventType: eventType,
		Timestamp: at.UTC(),
		Source:    "penf-live",
		Version:   "1.0",
	}
}

// ItemEvent is the payload published for every session change.
type ItemEvent struct {
	BaseEvent

	SessionID string     `json:"session_id"`
	Item      *live.Item `json:"item,omitempty"`

	// Index is the removal or restore position.
	Index    int  `json:"index,omitempty"`
	Rollback bool `json:"rollback,omitempty"`
}

// Client is the subset of redis.UniversalClient the publisher uses.
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Publisher publishes session events to Redis. It implements live.Listener.
type Publisher struct {
	client  Client
	prefix  string
	timeout time.Duration
	logger  logging.Logger
	metrics *observability.LiveMetrics
}

var _ live.Listener = (*Publisher)(nil)

// PublisherConfig holds Redis connection configuration.
type PublisherConfig struct {
	Addr          string
	Password      string
	DB            int
	ChannelPrefix string
}

// NewPublisher creates a new event publisher. An empty prefix uses
// DefaultChannelPrefix.
func NewPublisher(client Client, prefix string, logger logging.Logger, metrics *observability.LiveMetrics) *Publisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		timeout: DefaultPublishTimeout,
		logger:  logger.With(logging.F("component", "event_publisher")),
		metrics: metrics,
	}
}

// NewPublisherFromConfig creates a publisher with a new Redis connection.
func NewPublisherFromConfig(cfg PublisherConfig, logger logging.Logger, metrics *observability.LiveMetrics) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewPublisher(client, cfg.ChannelPrefix, logger, metrics), nil
}

// Channel returns the channel a session's events are published on.
func (p *Publisher) Channel(sessionID string) string {
	return SessionChannel(p.prefix, sessionID)
}

// SessionChannel builds "<prefix>:sessions:<id>".
func SessionChannel(prefix, sessionID string) string {
	return prefix + ":sessions:" + sessionID
}

// HandleEvent publishes ev. Failures are logged and counted; they never
// affect the session.
func (p *Publisher) HandleEvent(ev live.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	_ = p.Publish(ctx, ev)
}

// Publish serializes ev and publishes it on the session's channel.
func (p *Publisher) Publish(ctx context.Context, ev live.Event) error {
	payload := ItemEvent{
		BaseEvent: NewBaseEvent(string(ev.Type), ev.At),
		SessionID: ev.SessionID,
		Item:      ev.Item,
		Index:     ev.Index,
		Rollback:  ev.Rollback,
	}

	err := p.publish(ctx, p.Channel(ev.SessionID), payload)
	status := observability.StatusSuccess
	if err != nil {
		status = "error"
	}
	p.metrics.RecordEventPublished(string(ev.Type), status)
	return err
}

// publish serializes and publishes an event to Redis.
func (p *Publisher) publish(ctx context.Context, channel string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		p.logger.Error("Failed to publish event",
			logging.Err(err),
			logging.F("channel", channel))
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	p.logger.Debug("Event published",
		logging.F("channel", channel),
		logging.F("payload_size", len(data)))

	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
