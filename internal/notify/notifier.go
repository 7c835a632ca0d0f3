package notify

import (
	"context"
	"fmt"
	"log"

	"trade_core/internal/models"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Notifier interface {
	Send(msg string)
	Sendf(format string, args ...any)
	SendService(ctx context.Context, format string, args ...any)
}

// Telegram — пассивный нотифайер: сигналы и сервисные сообщения в чат.
// Без токена все методы — no-op, ядру это не мешает.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" || chatID == 0 {
		return &Telegram{}, nil
	}
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) Send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Sendf(format string, args ...any) { t.Send(fmt.Sprintf(format, args...)) }

func (t *Telegram) SendService(ctx context.Context, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("[NOTIFY] %s", msg)
	t.Send(msg)
}

// SendSignal — форматированное уведомление о сработавшем правиле.
func (t *Telegram) SendSignal(sig models.Signal) {
	emoji := "⚪️"
	switch sig.Direction {
	case models.DirLong:
		emoji = "🟢"
	case models.DirShort:
		emoji = "🔴"
	}
	t.Sendf("%s %s %s @ %.4f\nправило: %s | conf=%.2f | seq=%d",
		emoji, sig.Direction, sig.Symbol, sig.Price, sig.RuleID, sig.Confidence, sig.BarSeq)
}
