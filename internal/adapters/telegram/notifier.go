package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"bonfire/internal/domain"
	"bonfire/internal/infra/metrics"
)

// Sender — часть tgbotapi.BotAPI, нужная для отправки алертов.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// LagNotifier шлёт в чат предупреждение об отставании обработчика.
// Для каждой вселенной отправляется не чаще одного сообщения за interval.
type LagNotifier struct {
	bot      Sender
	chatID   int64
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

var _ domain.LagNotifier = (*LagNotifier)(nil)

// NewLagNotifier создаёт уведомитель.
func NewLagNotifier(bot Sender, chatID int64, interval time.Duration) *LagNotifier {
	return &LagNotifier{
		bot:      bot,
		chatID:   chatID,
		interval: interval,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// NotifyLag отправляет сообщение, если с прошлого алерта по вселенной прошло больше interval.
func (n *LagNotifier) NotifyLag(ctx context.Context, universe string, lag time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !n.reserve(universe) {
		return nil
	}

	text := fmt.Sprintf("⚠️ <b>%s</b>: обработчик отстаёт от сборщика на %s",
		html.EscapeString(universe), lag.Truncate(time.Second))
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	start := time.Now()
	_, err := n.bot.Send(msg)
	metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(n.chatID, 10), start, err)
	if err != nil {
		n.release(universe)
		return fmt.Errorf("отправка алерта: %w", err)
	}
	return nil
}

func (n *LagNotifier) reserve(universe string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := n.now()
	if last, ok := n.last[universe]; ok && now.Sub(last) < n.interval {
		return false
	}
	n.last[universe] = now
	return true
}

// release снимает резерв после неудачной отправки, чтобы следующий алерт не ждал interval.
func (n *LagNotifier) release(universe string) {
	n.mu.Lock()
	delete(n.last, universe)
	n.mu.Unlock()
}
