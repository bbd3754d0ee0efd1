// Package discord adapts github.com/bwmarrin/discordgo into a
// channels.FullAdapter: inbound gateway events become pkg/models.Message
// values on Messages(), outbound Message values are posted back through
// Send.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
)

// Config holds the Discord adapter's connection settings.
type Config struct {
	Token  string
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return channels.ErrConfig("token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Discord.
type Adapter struct {
	cfg         Config
	session     *discordgo.Session
	messages    chan *models.Message
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	rateLimiter *channels.RateLimiter
	logger      *slog.Logger
	health      *channels.BaseHealthAdapter
}

// New creates a Discord adapter. The gateway session connects on Start.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "discord")
	return &Adapter{
		cfg:         cfg,
		messages:    make(chan *models.Message, 100),
		rateLimiter: channels.NewRateLimiter(5, 10),
		logger:      logger,
		health:      channels.NewBaseHealthAdapter(models.ChannelDiscord, logger),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelDiscord }

// Start opens the Discord gateway session, retrying through a
// channels.Reconnector until the first connection succeeds or the
// context is canceled.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	session, err := discordgo.New("Bot " + a.cfg.Token)
	if err != nil {
		a.health.SetStatus(false, err.Error())
		a.health.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("create discord session", err)
	}
	session.AddHandler(a.handleMessageCreate)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.health.SetStatus(true, "")
		a.logger.Info("discord connection ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		a.health.SetStatus(false, "disconnected from discord")
		a.health.SetDegraded(true)
	})
	a.session = session

	reconnector := &channels.Reconnector{Logger: a.logger, Health: a.health}
	if err := reconnector.Run(ctx, func(context.Context) error { return a.session.Open() }); err != nil {
		a.health.RecordError(channels.ErrCodeConnection)
		return channels.ErrConnection("open discord session", err)
	}
	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-ctx.Done()
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
	case <-ctx.Done():
		a.logger.Warn("stop timeout, forcing shutdown")
	}

	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.health.RecordError(channels.ErrCodeConnection)
			return channels.ErrConnection("close discord session", err)
		}
	}
	a.health.SetStatus(false, "")
	a.health.RecordConnectionClosed()
	close(a.messages)
	return nil
}

func (a *Adapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	start := time.Now()
	msg := &models.Message{
		ID:             fmt.Sprintf("discord_%s", m.ID),
		ConversationID: fmt.Sprintf("discord:%s", m.ChannelID),
		UserID:         m.Author.ID,
		Role:           models.RoleUser,
		Content:        m.Content,
		CreatedAt:      time.Now(),
		Metadata: map[string]any{
			"discord_channel_id": m.ChannelID,
			"discord_username":   m.Author.Username,
		},
	}
	if !m.Timestamp.IsZero() {
		msg.CreatedAt = m.Timestamp
	}
	a.health.RecordMessageReceived()
	a.health.RecordReceiveLatency(time.Since(start))
	select {
	case a.messages <- msg:
		a.health.UpdateLastPing()
	default:
		a.logger.Warn("messages channel full, dropping message", "channel_id", m.ChannelID)
		a.health.RecordMessageFailed()
	}
}

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

// Send delivers msg.Content to the channel id encoded in
// ConversationID ("discord:<channel-id>") or msg.Metadata["discord_channel_id"].
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	if a.session == nil {
		return channels.ErrInternal("discord session not started", nil)
	}
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}
	channelID, err := extractChannelID(msg)
	if err != nil {
		return channels.ErrInvalidInput("extract channel id", err)
	}
	start := time.Now()
	if _, err := a.session.ChannelMessageSend(channelID, msg.Content); err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("send discord message", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

func extractChannelID(msg *models.Message) (string, error) {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["discord_channel_id"].(string); ok && v != "" {
			return v, nil
		}
	}
	if strings.HasPrefix(msg.ConversationID, "discord:") {
		return strings.TrimPrefix(msg.ConversationID, "discord:"), nil
	}
	return "", fmt.Errorf("discord_channel_id not found in message")
}

func (a *Adapter) Status() channels.Status          { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot { return a.health.Metrics() }

func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	if a.session == nil {
		return channels.HealthStatus{Message: "session not started", LastCheck: start, Latency: time.Since(start)}
	}
	status := a.health.Status()
	if !status.Connected {
		return channels.HealthStatus{Message: "not connected", LastCheck: start, Latency: time.Since(start)}
	}
	return channels.HealthStatus{
		Healthy:   true,
		Message:   "ok",
		LastCheck: start,
		Latency:   time.Since(start),
		Degraded:  a.health.IsDegraded(),
	}
}
