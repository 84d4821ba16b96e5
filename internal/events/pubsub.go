package events

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// publisher is the slice of the Pub/Sub publisher the notifier needs.
type publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// PubSubNotifier publishes asset notifications as JSON messages with an
// "event" attribute for consumer-side routing.
type PubSubNotifier struct {
	pub publisher
}

func NewPubSubNotifier(pub publisher) *PubSubNotifier {
	return &PubSubNotifier{pub: pub}
}

func (n *PubSubNotifier) publish(ctx context.Context, event string, payload any) error {
	if n == nil || n.pub == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", event, err)
	}
	result := n.pub.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": event},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publishing %s event: %w", event, err)
	}
	return nil
}

func (n *PubSubNotifier) AssetAdded(ctx context.Context, ev AssetAdded) error {
	return n.publish(ctx, "asset.added", ev)
}

func (n *PubSubNotifier) AssetRemoved(ctx context.Context, ev AssetRemoved) error {
	return n.publish(ctx, "asset.removed", ev)
}

func (n *PubSubNotifier) PositionsChanged(ctx context.Context, ev PositionsChanged) error {
	return n.publish(ctx, "asset.positions_changed", ev)
}
