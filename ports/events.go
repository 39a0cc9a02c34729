package ports

import (
	"context"

	"github.com/layer-3/agora/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogout(ctx context.Context, address string, tokenID string) error
	PublishWalletEvent(ctx context.Context, event core.WalletEvent) error
	PublishPurchase(ctx context.Context, event core.PurchaseRecorded) error
}
