package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jpillora/backoff"

	"fusionbot/internal/domain"
	"fusionbot/internal/ports"
)

const sendMaxRetries = 3

// TelegramNotifier sends trade lifecycle messages via the Telegram Bot API.
// It implements ports.Notifier; sends run on the caller's goroutine but are
// bounded by the HTTP client timeout, and failures are logged and dropped.
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *http.Client
	logger   ports.Logger
}

// Config holds configuration for the Telegram notifier.
type Config struct {
	BotToken string
	ChatID   string
	ProxyURL string // Optional HTTP proxy
	Logger   ports.Logger
}

// NewTelegram creates a notifier with optional proxy support.
func NewTelegram(cfg Config) (*TelegramNotifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("bot token and chat ID are required for Telegram notifier")
	}
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if u, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: cfg.Logger,
	}, nil
}

// TradeOpened announces a freshly opened position.
func (t *TelegramNotifier) TradeOpened(ctx context.Context, pos *domain.Position) {
	msg := fmt.Sprintf("📈 <b>%s %s opened</b>\nEntry: %.2f\nQty: %.4f (x%d)\nStop: %.2f",
		pos.Symbol, pos.Side, pos.EntryPrice, pos.Quantity, pos.Leverage, pos.StopLoss.Price)
	for _, tp := range pos.TakeProfits {
		msg += fmt.Sprintf("\nTP%d: %.2f (%.0f%%)", tp.Level, tp.Price, tp.SizePercent)
	}
	t.deliver(ctx, msg)
}

// TradeClosed announces a fully closed position with its realized result.
func (t *TelegramNotifier) TradeClosed(ctx context.Context, trade *domain.Trade) {
	emoji := "✅"
	if trade.PNL < 0 {
		emoji = "❌"
	}
	msg := fmt.Sprintf("%s <b>%s %s closed</b> (%s)\nEntry: %.2f → Exit: %.2f\nPNL: %.2f USDT",
		emoji, trade.Symbol, trade.Side, trade.CloseReason, trade.EntryPrice, trade.ExitPrice, trade.PNL)
	t.deliver(ctx, msg)
}

// TakeProfitHit announces a filled ladder rung.
func (t *TelegramNotifier) TakeProfitHit(ctx context.Context, pos *domain.Position, level int, price float64) {
	msg := fmt.Sprintf("🎯 <b>%s TP%d hit</b> at %.2f\nRemaining: %.4f", pos.Symbol, level, price, pos.Remaining)
	t.deliver(ctx, msg)
}

// BreakevenMoved announces the stop reaching the entry price.
func (t *TelegramNotifier) BreakevenMoved(ctx context.Context, pos *domain.Position, stopPrice float64) {
	msg := fmt.Sprintf("🛡 <b>%s stop moved to breakeven</b> at %.2f", pos.Symbol, stopPrice)
	t.deliver(ctx, msg)
}

// TrailingActivated announces the trailing stop engaging.
func (t *TelegramNotifier) TrailingActivated(ctx context.Context, pos *domain.Position, distance float64) {
	msg := fmt.Sprintf("🔄 <b>%s trailing stop active</b>, distance %.2f", pos.Symbol, distance)
	t.deliver(ctx, msg)
}

// CriticalAlert is reserved for the highest-severity failures.
func (t *TelegramNotifier) CriticalAlert(ctx context.Context, subject, detail string) {
	msg := fmt.Sprintf("🚨 <b>CRITICAL: %s</b>\n%s", subject, detail)
	t.deliver(ctx, msg)
}

// deliver sends with exponential backoff and drops the message after the
// final retry. Notification failure must never propagate into trading logic.
func (t *TelegramNotifier) deliver(ctx context.Context, text string) {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second, Factor: 2}
	var lastErr error
	for i := 0; i <= sendMaxRetries; i++ {
		if lastErr = t.send(ctx, text); lastErr == nil {
			return
		}
		wait := b.Duration()
		t.logger.Warn(ctx, "Telegram send failed, retrying", map[string]interface{}{
			"attempt": i + 1, "maxAttempts": sendMaxRetries + 1, "delay": wait.String(), "error": lastErr.Error(),
		})
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	t.logger.Error(ctx, lastErr, "Telegram message dropped after retries")
}

func (t *TelegramNotifier) send(ctx context.Context, text string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
