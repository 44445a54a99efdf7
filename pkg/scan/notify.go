package scan

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) Title() string {
	switch s {
	case SeveritySuccess:
		return "Slip recorded"
	case SeverityWarning:
		return "Check the slip"
	default:
		return "Scan failed"
	}
}

type Notification struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Message  string   `json:"message"`
}

// Notifier delivers scan results to the user. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *Recorder) Notify(_ context.Context, n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notes))
	copy(out, r.notes)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return Notification{}, false
	}
	return r.notes[len(r.notes)-1], true
}

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier { return &LogNotifier{log: log} }

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	ev := l.log.Info()
	switch n.Severity {
	case SeverityWarning:
		ev = l.log.Warn()
	case SeverityError:
		ev = l.log.Error()
	}
	ev.Str("title", n.Title).Msg(n.Message)
}

// Multi fans a notification out to every non-nil notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts notifications to a single chat.
type Telegram struct {
	bot    messageSender
	chatID int64
	log    zerolog.Logger
}

func NewTelegram(token string, chatID int64, log zerolog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) Notify(_ context.Context, n Notification) {
	msg := tgbotapi.NewMessage(t.chatID, FormatText(n))
	if _, err := t.bot.Send(msg); err != nil {
		t.log.Warn().Err(err).Int64("chat_id", t.chatID).Msg("telegram notify failed")
	}
}

// FormatText renders a notification as a single plain-text message.
func FormatText(n Notification) string {
	icon := "✅"
	switch n.Severity {
	case SeverityWarning:
		icon = "⚠️"
	case SeverityError:
		icon = "❌"
	}
	return fmt.Sprintf("%s %s\n%s", icon, n.Title, n.Message)
}
