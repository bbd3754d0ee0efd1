// Package mattermost adapts github.com/mattermost/mattermost/server/public/model
// into a channels.FullAdapter: inbound WebSocket post events become
// pkg/models.Message values on Messages(), outbound Message values are
// posted back through Send.
package mattermost

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
	"github.com/mattermost/mattermost/server/public/model"
)

// Config holds the Mattermost adapter's connection settings.
type Config struct {
	ServerURL string
	Token     string
	Logger    *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ServerURL) == "" || strings.TrimSpace(c.Token) == "" {
		return channels.ErrConfig("server_url and token are required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Mattermost.
type Adapter struct {
	cfg         Config
	client      *model.Client4
	wsClient    *model.WebSocketClient
	messages    chan *models.Message
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	botUserID   string
	botUserIDMu sync.RWMutex
	rateLimiter *channels.RateLimiter
	logger      *slog.Logger
	health      *channels.BaseHealthAdapter
}

// New creates a Mattermost adapter. The WebSocket connection opens on Start.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "mattermost")
	client := model.NewAPIv4Client(cfg.ServerURL)
	client.SetToken(cfg.Token)
	return &Adapter{
		cfg:         cfg,
		client:      client,
		messages:    make(chan *models.Message, 100),
		rateLimiter: channels.NewRateLimiter(10, 5),
		logger:      logger,
		health:      channels.NewBaseHealthAdapter(models.ChannelMattermost, logger),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelMattermost }

func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	me, _, err := a.client.GetMe(ctx, "")
	if err != nil {
		a.health.RecordError(channels.ErrCodeAuthentication)
		return channels.ErrAuthentication("get mattermost bot user", err)
	}
	a.setBotUserID(me.Id)

	wsClient, err := model.NewWebSocketClient4(buildWebSocketURL(a.cfg.ServerURL), a.client.AuthToken)
	if err != nil {
		a.health.RecordError(channels.ErrCodeConnection)
		return channels.ErrConnection("connect mattermost websocket", err)
	}
	a.wsClient = wsClient
	a.wsClient.Listen()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handleEvents(ctx)
	}()

	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.wsClient != nil {
		a.wsClient.Close()
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
		case event, ok := <-a.wsClient.EventChannel:
			if !ok {
				return
			}
			a.health.UpdateLastPing()
			switch event.EventType() {
			case model.WebsocketEventPosted:
				a.handlePosted(event)
			case model.WebsocketEventHello:
				a.health.SetStatus(true, "")
				a.health.SetDegraded(false)
			}
		case _, ok := <-a.wsClient.ResponseChannel:
			if !ok {
				return
			}
		}
	}
}

func (a *Adapter) handlePosted(event *model.WebSocketEvent) {
	postJSON, ok := event.GetData()["post"].(string)
	if !ok {
		return
	}
	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		a.logger.Warn("failed to parse mattermost post", "error", err)
		return
	}
	if post.UserId == a.getBotUserID() {
		return
	}
	channelType, _ := event.GetData()["channel_type"].(string)
	isDM := channelType == "D"
	isMention := strings.Contains(post.Message, "@"+a.getBotUserID())
	if !isDM && !isMention && post.RootId == "" {
		return
	}

	start := time.Now()
	threadID := post.RootId
	if threadID == "" {
		threadID = post.Id
	}
	msg := &models.Message{
		ID:             post.Id,
		ConversationID: fmt.Sprintf("mattermost:%s:%s", post.ChannelId, threadID),
		UserID:         post.UserId,
		Role:           models.RoleUser,
		Content:        post.Message,
		CreatedAt:      time.UnixMilli(post.CreateAt),
		Metadata: map[string]any{
			"mattermost_channel": post.ChannelId,
			"mattermost_root_id": post.RootId,
		},
	}
	a.health.RecordMessageReceived()
	a.health.RecordReceiveLatency(time.Since(start))
	select {
	case a.messages <- msg:
		a.health.UpdateLastPing()
	default:
		a.logger.Warn("messages channel full, dropping message", "channel_id", post.ChannelId)
		a.health.RecordMessageFailed()
	}
}

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

// Send delivers msg.Content to the channel encoded in
// msg.Metadata["mattermost_channel"] or the ConversationID's
// "mattermost:<channel>:..." segment, optionally threaded on
// mattermost_root_id.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return channels.ErrTimeout("rate limit wait cancelled", err)
	}
	channelID, err := extractChannelID(msg)
	if err != nil {
		return channels.ErrInvalidInput("extract channel id", err)
	}
	post := &model.Post{ChannelId: channelID, Message: msg.Content}
	if rootID, ok := msg.Metadata["mattermost_root_id"].(string); ok && rootID != "" {
		post.RootId = rootID
	}

	start := time.Now()
	if _, _, err := a.client.CreatePost(ctx, post); err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("send mattermost message", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

func extractChannelID(msg *models.Message) (string, error) {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["mattermost_channel"].(string); ok && v != "" {
			return v, nil
		}
	}
	parts := strings.Split(msg.ConversationID, ":")
	if len(parts) >= 2 && parts[0] == "mattermost" {
		return parts[1], nil
	}
	return "", fmt.Errorf("mattermost_channel not found in message")
}

func buildWebSocketURL(serverURL string) string {
	wsURL := strings.Replace(serverURL, "https://", "wss://", 1)
	return strings.Replace(wsURL, "http://", "ws://", 1)
}

func (a *Adapter) setBotUserID(id string) {
	a.botUserIDMu.Lock()
	defer a.botUserIDMu.Unlock()
	a.botUserID = id
}

func (a *Adapter) getBotUserID() string {
	a.botUserIDMu.RLock()
	defer a.botUserIDMu.RUnlock()
	return a.botUserID
}

func (a *Adapter) Status() channels.Status          { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot { return a.health.Metrics() }

func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	ping, _, err := a.client.GetPing(ctx)
	if err != nil {
		return channels.HealthStatus{Message: err.Error(), LastCheck: start, Latency: time.Since(start)}
	}
	return channels.HealthStatus{
		Healthy:   ping == "OK",
		Message:   "ok",
		LastCheck: start,
		Latency:   time.Since(start),
		Degraded:  a.health.IsDegraded(),
	}
}
