// Package telegram adapts github.com/go-telegram/bot into a
// channels.FullAdapter: inbound updates become pkg/models.Message
// values on Messages(), outbound Message values are posted back
// through Send.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
)

// Config holds the Telegram adapter's connection settings.
type Config struct {
	BotToken string
	Logger   *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return channels.ErrConfig("bot_token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Telegram.
type Adapter struct {
	cfg         Config
	bot         *tgbot.Bot
	messages    chan *models.Message
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	rateLimiter *channels.RateLimiter
	logger      *slog.Logger
	health      *channels.BaseHealthAdapter
}

// New creates a Telegram adapter. The bot client connects on Start.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "telegram")
	return &Adapter{
		cfg:         cfg,
		messages:    make(chan *models.Message, 100),
		rateLimiter: channels.NewRateLimiter(30, 20),
		logger:      logger,
		health:      channels.NewBaseHealthAdapter(models.ChannelTelegram, logger),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelTelegram }

// Start creates the bot client and begins long polling in the
// background.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	b, err := tgbot.New(a.cfg.BotToken, tgbot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		a.health.SetStatus(false, err.Error())
		a.health.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("create telegram bot", err)
	}
	a.bot = b
	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.messages)
		reconnector := &channels.Reconnector{
			Logger: a.logger,
			Health: a.health,
		}
		_ = reconnector.Run(ctx, func(runCtx context.Context) error {
			a.bot.Start(runCtx)
			return nil
		})
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		a.health.RecordConnectionClosed()
		return nil
	case <-ctx.Done():
		return channels.ErrTimeout("stop timeout", ctx.Err())
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, _ *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	start := time.Now()
	msg := &models.Message{
		ID:             fmt.Sprintf("telegram_%d", update.Message.ID),
		ConversationID: fmt.Sprintf("telegram:%d", update.Message.Chat.ID),
		UserID:         strconv.FormatInt(update.Message.From.ID, 10),
		Role:           models.RoleUser,
		Content:        update.Message.Text,
		CreatedAt:      time.Unix(int64(update.Message.Date), 0),
		Metadata: map[string]any{
			"chat_id":   update.Message.Chat.ID,
			"chat_type": string(update.Message.Chat.Type),
		},
	}
	a.health.RecordMessageReceived()
	a.health.RecordReceiveLatency(time.Since(start))
	select {
	case a.messages <- msg:
		a.health.UpdateLastPing()
	case <-ctx.Done():
	default:
		a.logger.Warn("messages channel full, dropping update", "chat_id", update.Message.Chat.ID)
		a.health.RecordMessageFailed()
	}
}

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

// Send delivers msg.Content to the chat id encoded in
// ConversationID ("telegram:<chat-id>") or msg.Metadata["chat_id"].
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	if a.bot == nil {
		return channels.ErrInternal("telegram bot not started", nil)
	}
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}
	chatID, err := extractChatID(msg)
	if err != nil {
		return channels.ErrInvalidInput("extract chat id", err)
	}
	start := time.Now()
	_, err = a.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   msg.Content,
	})
	if err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("send telegram message", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

func extractChatID(msg *models.Message) (int64, error) {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["chat_id"]; ok {
			switch t := v.(type) {
			case int64:
				return t, nil
			case int:
				return int64(t), nil
			case string:
				return strconv.ParseInt(t, 10, 64)
			}
		}
	}
	var chatID int64
	if _, err := fmt.Sscanf(msg.ConversationID, "telegram:%d", &chatID); err == nil {
		return chatID, nil
	}
	return 0, errors.New("chat_id not found in message")
}

func (a *Adapter) Status() channels.Status                      { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot             { return a.health.Metrics() }
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	if a.bot == nil {
		return channels.HealthStatus{Message: "bot not started", LastCheck: start, Latency: time.Since(start)}
	}
	_, err := a.bot.GetMe(ctx)
	latency := time.Since(start)
	if err != nil {
		return channels.HealthStatus{Message: err.Error(), LastCheck: start, Latency: latency}
	}
	return channels.HealthStatus{Healthy: true, Message: "ok", LastCheck: start, Latency: latency, Degraded: a.health.IsDegraded()}
}
