package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/agora/core"
	"github.com/layer-3/agora/ports"
)

// Topics events are published on.
const (
	TopicLogout   = "agora.logout"
	TopicWallet   = "agora.wallet"
	TopicPurchase = "agora.purchase"
)

// MetadataEventType carries the event type of wallet messages.
const MetadataEventType = "event_type"

// LogoutEvent represents a logout event
type LogoutEvent struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

var _ ports.EventPublisher = (*WatermillPublisher)(nil)

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string, tokenID string) error {
	return p.publish(ctx, TopicLogout, tokenID, LogoutEvent{
		Address: address,
		TokenID: tokenID,
	}, nil)
}

// PublishWalletEvent publishes a wallet controller transition.
func (p *WatermillPublisher) PublishWalletEvent(ctx context.Context, event core.WalletEvent) error {
	return p.publish(ctx, TopicWallet, watermill.NewUUID(), event, message.Metadata{
		MetadataEventType: string(event.Type),
	})
}

// PublishPurchase publishes a recorded purchase. The message id is the
// transaction hash so redeliveries can be recognized.
func (p *WatermillPublisher) PublishPurchase(ctx context.Context, event core.PurchaseRecorded) error {
	return p.publish(ctx, TopicPurchase, event.TxHash, event, nil)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, id string, event any, metadata message.Metadata) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if id == "" {
		id = watermill.NewUUID()
	}
	msg := message.NewMessage(id, payload)
	msg.SetContext(ctx)
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", topic, err)
	}

	return nil
}
