// Package telegram delivers operator alerts to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"levelBot/internal/ports"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultQueueSize = 64

// Sender is the subset of *tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier implements ports.Notifier. Send only enqueues; Run delivers.
type Notifier struct {
	bot     Sender
	chatID  int64
	prefix  string
	queue   chan string
	logger  ports.Logger
	dropped atomic.Int64
}

var _ ports.Notifier = (*Notifier)(nil)

// Config holds configuration for the Telegram notifier.
type Config struct {
	Token     string
	ChatID    int64
	Prefix    string // prepended to every message, usually the symbol
	QueueSize int
	Logger    ports.Logger
}

// New connects to the Bot API and returns a notifier for one chat.
func New(cfg Config) (*Notifier, error) {
	if cfg.Token == "" || cfg.ChatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required: %w", ports.ErrConfigurationError)
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w: %w", ports.ErrConnectionFailed, err)
	}
	return NewWithSender(bot, cfg)
}

// NewWithSender builds a notifier around an existing sender.
func NewWithSender(bot Sender, cfg Config) (*Notifier, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for telegram notifier")
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Notifier{
		bot:    bot,
		chatID: cfg.ChatID,
		prefix: cfg.Prefix,
		queue:  make(chan string, size),
		logger: cfg.Logger,
	}, nil
}

// Send enqueues message. A full queue drops it with a warning.
func (n *Notifier) Send(ctx context.Context, message string) {
	if n.prefix != "" {
		message = fmt.Sprintf("[%s] %s", n.prefix, message)
	}
	select {
	case n.queue <- message:
	default:
		total := n.dropped.Add(1)
		n.logger.Warn(ctx, "Alert queue full, message dropped", map[string]interface{}{"dropped": total, "message": message})
	}
}

// Dropped returns how many messages were discarded on a full queue.
func (n *Notifier) Dropped() int64 {
	return n.dropped.Load()
}

// Run delivers queued messages until ctx is done, then flushes what is
// already queued.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case msg := <-n.queue:
			n.deliver(ctx, msg)
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case msg := <-n.queue:
					n.deliver(flushCtx, msg)
				default:
					return
				}
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg string) {
	if _, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, msg)); err != nil {
		n.logger.Error(ctx, err, "Failed to deliver telegram alert", map[string]interface{}{"message": msg})
	}
}

// LogNotifier writes alerts to the logger only. Used when no chat is configured.
type LogNotifier struct {
	Logger ports.Logger
}

// Send logs message at info level.
func (l LogNotifier) Send(ctx context.Context, message string) {
	l.Logger.Info(ctx, "Alert", map[string]interface{}{"message": message})
}
