// Package slack adapts github.com/slack-go/slack (Socket Mode) into a
// channels.FullAdapter: inbound events become pkg/models.Message values
// on Messages(), outbound Message values are posted back through Send.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Config holds the Slack adapter's connection settings.
type Config struct {
	BotToken string // xoxb- token for Web API calls
	AppToken string // xapp- token for Socket Mode
	Logger   *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.BotToken) == "" || strings.TrimSpace(c.AppToken) == "" {
		return channels.ErrConfig("bot_token and app_token are required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Slack.
type Adapter struct {
	cfg         Config
	client      *slack.Client
	socket      *socketmode.Client
	messages    chan *models.Message
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	botUserID   string
	botUserIDMu sync.RWMutex
	rateLimiter *channels.RateLimiter
	logger      *slog.Logger
	health      *channels.BaseHealthAdapter
}

// New creates a Slack adapter. The socket-mode connection opens on Start.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "slack")
	client := slack.New(cfg.BotToken, slack.OptionAppLevelToken(cfg.AppToken))
	socket := socketmode.New(client)
	return &Adapter{
		cfg:         cfg,
		client:      client,
		socket:      socket,
		messages:    make(chan *models.Message, 100),
		rateLimiter: channels.NewRateLimiter(1, 5),
		logger:      logger,
		health:      channels.NewBaseHealthAdapter(models.ChannelSlack, logger),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelSlack }

func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	auth, err := a.client.AuthTestContext(ctx)
	if err != nil {
		a.health.SetStatus(false, err.Error())
		a.health.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("authenticate with slack", err)
	}
	a.botUserIDMu.Lock()
	a.botUserID = auth.UserID
	a.botUserIDMu.Unlock()

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		a.handleEvents(ctx)
	}()
	go func() {
		defer a.wg.Done()
		reconnector := &channels.Reconnector{Logger: a.logger, Health: a.health}
		_ = reconnector.Run(ctx, func(context.Context) error { return a.socket.Run() })
	}()

	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()
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
	a.health.SetStatus(false, "")
	a.health.RecordConnectionClosed()
	close(a.messages)
	return nil
}

func (a *Adapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.health.UpdateLastPing()
			switch event.Type {
			case socketmode.EventTypeConnectionError:
				a.health.SetStatus(false, "connection error")
			case socketmode.EventTypeConnected:
				a.health.SetStatus(true, "")
			case socketmode.EventTypeEventsAPI:
				a.handleEventsAPI(event)
			case socketmode.EventTypeSlashCommand, socketmode.EventTypeInteractive:
				if event.Request != nil {
					a.socket.Ack(*event.Request)
				}
			}
		}
	}
}

func (a *Adapter) handleEventsAPI(event socketmode.Event) {
	apiEvent, ok := event.Data.(slackevents.EventsAPIEvent)
	if !ok {
		if event.Request != nil {
			a.socket.Ack(*event.Request)
		}
		return
	}
	if event.Request != nil {
		a.socket.Ack(*event.Request)
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := apiEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.handleMessage(ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
	case *slackevents.MessageEvent:
		if ev.BotID != "" || (ev.SubType != "" && ev.SubType != "file_share") {
			return
		}
		a.handleMessage(ev.Channel, ev.User, ev.Text, ev.TimeStamp, ev.ThreadTimeStamp)
	}
}

func (a *Adapter) handleMessage(channelID, userID, text, ts, threadTS string) {
	a.botUserIDMu.RLock()
	botUserID := a.botUserID
	a.botUserIDMu.RUnlock()

	isDM := strings.HasPrefix(channelID, "D")
	isMention := strings.Contains(text, fmt.Sprintf("<@%s>", botUserID))
	if !isDM && !isMention && threadTS == "" {
		return
	}

	start := time.Now()
	msg := &models.Message{
		ID:             fmt.Sprintf("slack_%s_%s", channelID, ts),
		ConversationID: fmt.Sprintf("slack:%s:%s", channelID, firstNonEmpty(threadTS, ts)),
		UserID:         userID,
		Role:           models.RoleUser,
		Content:        stripMentions(text),
		CreatedAt:      parseSlackTimestamp(ts),
		Metadata: map[string]any{
			"slack_channel":   channelID,
			"slack_ts":        ts,
			"slack_thread_ts": threadTS,
		},
	}
	a.health.RecordMessageReceived()
	a.health.RecordReceiveLatency(time.Since(start))
	select {
	case a.messages <- msg:
		a.health.UpdateLastPing()
	default:
		a.logger.Warn("messages channel full, dropping message", "channel_id", channelID)
		a.health.RecordMessageFailed()
	}
}

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

// Send delivers msg.Content to the channel encoded in
// msg.Metadata["slack_channel"] or the ConversationID's first
// "slack:<channel>:..." segment, optionally threaded on slack_thread_ts.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}
	channelID, err := extractChannelID(msg)
	if err != nil {
		return channels.ErrInvalidInput("extract channel id", err)
	}

	options := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if threadTS, ok := msg.Metadata["slack_thread_ts"].(string); ok && threadTS != "" {
		options = append(options, slack.MsgOptionTS(threadTS))
	}

	start := time.Now()
	if _, _, err := a.client.PostMessageContext(ctx, channelID, options...); err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("send slack message", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

func extractChannelID(msg *models.Message) (string, error) {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["slack_channel"].(string); ok && v != "" {
			return v, nil
		}
	}
	parts := strings.Split(msg.ConversationID, ":")
	if len(parts) >= 2 && parts[0] == "slack" {
		return parts[1], nil
	}
	return "", fmt.Errorf("slack_channel not found in message")
}

func stripMentions(text string) string {
	for strings.Contains(text, "<@") {
		start := strings.Index(text, "<@")
		end := strings.Index(text[start:], ">")
		if end == -1 {
			break
		}
		text = text[:start] + text[start+end+1:]
	}
	return strings.TrimSpace(text)
}

func parseSlackTimestamp(ts string) time.Time {
	var sec, usec int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &sec, &usec); err != nil {
		return time.Now()
	}
	return time.Unix(sec, usec*1000)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (a *Adapter) Status() channels.Status          { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot { return a.health.Metrics() }

func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	status := a.health.Status()
	if !status.Connected {
		return channels.HealthStatus{Message: "not connected", LastCheck: start, Latency: time.Since(start)}
	}
	if _, err := a.client.AuthTestContext(ctx); err != nil {
		return channels.HealthStatus{Message: err.Error(), LastCheck: start, Latency: time.Since(start)}
	}
	return channels.HealthStatus{
		Healthy:   true,
		Message:   "ok",
		LastCheck: start,
		Latency:   time.Since(start),
		Degraded:  a.health.IsDegraded(),
	}
}
