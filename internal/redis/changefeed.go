package redis

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/metrics"
)

func sessionChannel(ownerID uuid.UUID) string {
	return "sessions:" + ownerID.String()
}

// ChangeFeed is the backing store's push channel: raw change payloads for
// one owner's session rows travel over a per-owner Pub/Sub channel.
type ChangeFeed struct {
	client *Client
}

func NewChangeFeed(client *Client) *ChangeFeed {
	return &ChangeFeed{client: client}
}

// Publish pushes a raw change payload onto the owner's channel.
func (f *ChangeFeed) Publish(ctx context.Context, ownerID uuid.UUID, payload []byte) error {
	return f.client.rdb.Publish(ctx, sessionChannel(ownerID), payload).Err()
}

// Subscribe listens for raw change payloads for an owner. The returned stop
// function unsubscribes and closes the channel. A dropped subscription is
// logged and not retried here.
func (f *ChangeFeed) Subscribe(ctx context.Context, ownerID uuid.UUID) (<-chan []byte, func()) {
	sub := f.client.rdb.Subscribe(ctx, sessionChannel(ownerID))

	subCtx, cancel := context.WithCancel(ctx)
	ch := make(chan []byte, 16)

	go func() {
		defer close(ch)
		msgCh := sub.Channel()
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					slog.Warn("Change-feed subscription dropped", "owner_id", ownerID.String())
					return
				}
				select {
				case ch <- []byte(msg.Payload):
				default:
					// Drop if receiver is slow; the next snapshot supersedes it.
					metrics.FeedDroppedTotal.Inc()
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	stop := func() {
		cancel()
		_ = sub.Close()
	}
	return ch, stop
}
