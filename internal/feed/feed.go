// Package feed normalizes raw change-feed payloads into session change
// events and fans them out to registered handlers. Events are full row
// snapshots: out-of-order or duplicate delivery is tolerated because
// downstream components compare against current state before acting.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
)

// Message is the wire format on the change-feed channel. Table is carried
// so receivers can ignore payloads for tables they do not watch.
type Message struct {
	EventType string             `json:"event_type"`
	Table     string             `json:"table"`
	EntityID  uuid.UUID          `json:"entity_id"`
	Row       *domain.SessionRow `json:"row,omitempty"`
}

const sessionsTable = "sessions"

// Encode serializes a session change event into its wire form.
func Encode(event domain.ChangeEvent) ([]byte, error) {
	msg := Message{
		EventType: string(event.Kind),
		Table:     sessionsTable,
		EntityID:  event.EntityID,
		Row:       event.Row,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal change event: %w", err)
	}
	return data, nil
}

// Decode parses a raw payload into a normalized event. The second return is
// false for payloads that should be ignored (wrong table, malformed, or an
// unknown event type).
func Decode(payload []byte) (domain.ChangeEvent, bool) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("Failed to unmarshal change-feed payload", "error", err)
		metrics.FeedDroppedTotal.Inc()
		return domain.ChangeEvent{}, false
	}
	if msg.Table != sessionsTable {
		return domain.ChangeEvent{}, false
	}

	var kind domain.EventKind
	switch strings.ToLower(msg.EventType) {
	case "insert":
		kind = domain.EventInsert
	case "update":
		kind = domain.EventUpdate
	case "delete":
		kind = domain.EventDelete
	default:
		slog.Warn("Unknown change-feed event type", "event_type", msg.EventType)
		metrics.FeedDroppedTotal.Inc()
		return domain.ChangeEvent{}, false
	}

	return domain.ChangeEvent{Kind: kind, EntityID: msg.EntityID, Row: msg.Row}, true
}

// PubSub is the raw transport the feed runs on.
type PubSub interface {
	Publish(ctx context.Context, ownerID uuid.UUID, payload []byte) error
	Subscribe(ctx context.Context, ownerID uuid.UUID) (<-chan []byte, func())
}

// Publisher encodes session change events onto the transport. It implements
// domain.ChangePublisher.
type Publisher struct {
	pubsub PubSub
}

func NewPublisher(pubsub PubSub) *Publisher {
	return &Publisher{pubsub: pubsub}
}

func (p *Publisher) Publish(ctx context.Context, ownerID uuid.UUID, event domain.ChangeEvent) error {
	payload, err := Encode(event)
	if err != nil {
		return err
	}
	return p.pubsub.Publish(ctx, ownerID, payload)
}

// Handler receives normalized change events.
type Handler func(domain.ChangeEvent)

// Listener subscribes one owner's change feed and dispatches normalized
// events to a handler on a dedicated goroutine.
type Listener struct {
	pubsub PubSub
}

func NewListener(pubsub PubSub) *Listener {
	return &Listener{pubsub: pubsub}
}

// Subscribe starts dispatching the owner's events to handler. The returned
// stop function unsubscribes; in-flight events may still be delivered.
func (l *Listener) Subscribe(ctx context.Context, ownerID uuid.UUID, handler Handler) (stop func()) {
	ch, cancel := l.pubsub.Subscribe(ctx, ownerID)

	go func() {
		for payload := range ch {
			event, ok := Decode(payload)
			if !ok {
				continue
			}
			metrics.FeedEventsTotal.WithLabelValues(string(event.Kind)).Inc()
			handler(event)
		}
	}()

	return cancel
}
