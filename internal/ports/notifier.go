package ports

import (
	"context"

	"fusionbot/internal/domain"
)

// Notifier is the fire-and-forget notification sink. Implementations must
// never block trading logic; delivery failures are logged and dropped.
type Notifier interface {
	TradeOpened(ctx context.Context, pos *domain.Position)
	TradeClosed(ctx context.Context, trade *domain.Trade)
	TakeProfitHit(ctx context.Context, pos *domain.Position, level int, price float64)
	BreakevenMoved(ctx context.Context, pos *domain.Position, stopPrice float64)
	TrailingActivated(ctx context.Context, pos *domain.Position, distance float64)
	// CriticalAlert is reserved for the highest-severity failures, e.g. a
	// position left unprotected after verification retries are exhausted.
	CriticalAlert(ctx context.Context, subject, detail string)
}
