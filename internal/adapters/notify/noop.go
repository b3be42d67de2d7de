package notify

import (
	"context"

	"fusionbot/internal/domain"
)

// NoopNotifier discards all notifications. Used when Telegram is not configured.
type NoopNotifier struct{}

// NewNoop returns a notifier that drops everything.
func NewNoop() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) TradeOpened(ctx context.Context, pos *domain.Position)         {}
func (n *NoopNotifier) TradeClosed(ctx context.Context, trade *domain.Trade)          {}
func (n *NoopNotifier) TakeProfitHit(ctx context.Context, pos *domain.Position, level int, price float64) {
}
func (n *NoopNotifier) BreakevenMoved(ctx context.Context, pos *domain.Position, stopPrice float64) {}
func (n *NoopNotifier) TrailingActivated(ctx context.Context, pos *domain.Position, distance float64) {
}
func (n *NoopNotifier) CriticalAlert(ctx context.Context, subject, detail string) {}
