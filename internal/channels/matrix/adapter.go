// Package matrix adapts maunium.net/go/mautrix into a channels.FullAdapter:
// inbound room events become pkg/models.Message values on Messages(),
// outbound Message values are posted back through Send. Rooms auto-join
// on invite.
package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds the Matrix adapter's connection settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	DeviceID    string
	Logger      *slog.Logger
}

func (c *Config) validate() error {
	if c.Homeserver == "" || c.UserID == "" || c.AccessToken == "" {
		return channels.ErrConfig("homeserver, user_id, and access_token are required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for Matrix.
type Adapter struct {
	cfg      Config
	client   *mautrix.Client
	messages chan *models.Message
	logger   *slog.Logger
	health   *channels.BaseHealthAdapter

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a Matrix adapter. Sync starts on Start.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "matrix")
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, channels.ErrConfig("create matrix client", err)
	}
	if cfg.DeviceID != "" {
		client.DeviceID = id.DeviceID(cfg.DeviceID)
	}
	return &Adapter{
		cfg:      cfg,
		client:   client,
		messages: make(chan *models.Message, 100),
		logger:   logger,
		health:   channels.NewBaseHealthAdapter(models.ChannelMatrix, logger),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelMatrix }

func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = true
	a.stopCh = make(chan struct{})
	a.mu.Unlock()

	syncer, ok := a.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return channels.ErrInternal("matrix client has no default syncer", nil)
	}
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) { a.handleMessage(evt) })
	syncer.OnEventType(event.StateMember, func(ctx context.Context, evt *event.Event) { a.handleMemberEvent(ctx, evt) })

	go a.syncLoop(ctx)
	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	close(a.stopCh)
	a.mu.Unlock()

	a.client.StopSync()
	a.health.SetStatus(false, "")
	a.health.RecordConnectionClosed()
	close(a.messages)
	return nil
}

func (a *Adapter) syncLoop(ctx context.Context) {
	reconnector := &channels.Reconnector{Logger: a.logger, Health: a.health}
	_ = reconnector.Run(ctx, func(runCtx context.Context) error {
		select {
		case <-a.stopCh:
			return nil
		default:
		}
		return a.client.SyncWithContext(runCtx)
	})
}

func (a *Adapter) handleMessage(evt *event.Event) {
	if string(evt.Sender) == a.cfg.UserID {
		return
	}
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || (content.MsgType != event.MsgText && content.MsgType != event.MsgNotice) {
		return
	}

	start := time.Now()
	msg := &models.Message{
		ID:             string(evt.ID),
		ConversationID: fmt.Sprintf("matrix:%s", evt.RoomID),
		UserID:         string(evt.Sender),
		Role:           models.RoleUser,
		Content:        content.Body,
		CreatedAt:      time.UnixMilli(evt.Timestamp),
		Metadata: map[string]any{
			"room_id": string(evt.RoomID),
			"sender":  string(evt.Sender),
		},
	}
	a.health.RecordMessageReceived()
	a.health.RecordReceiveLatency(time.Since(start))
	select {
	case a.messages <- msg:
		a.health.UpdateLastPing()
	default:
		a.logger.Warn("messages channel full, dropping message", "room_id", evt.RoomID)
		a.health.RecordMessageFailed()
	}
}

func (a *Adapter) handleMemberEvent(ctx context.Context, evt *event.Event) {
	content, ok := evt.Content.Parsed.(*event.MemberEventContent)
	if !ok {
		return
	}
	if content.Membership == event.MembershipInvite && evt.GetStateKey() == a.cfg.UserID {
		if _, err := a.client.JoinRoom(ctx, string(evt.RoomID), nil); err != nil {
			a.logger.Error("failed to join room", "room_id", evt.RoomID, "error", err)
		}
	}
}

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

// Send delivers msg.Content to the room encoded in
// msg.Metadata["room_id"] or the ConversationID's "matrix:<room-id>" form.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	roomID, err := extractRoomID(msg)
	if err != nil {
		return channels.ErrInvalidInput("extract matrix room id", err)
	}
	content := &event.MessageEventContent{MsgType: event.MsgText, Body: msg.Content}
	if strings.Contains(msg.Content, "**") || strings.Contains(msg.Content, "```") {
		content.Format = event.FormatHTML
		content.FormattedBody = markdownToHTML(msg.Content)
	}

	start := time.Now()
	if _, err := a.client.SendMessageEvent(ctx, roomID, event.EventMessage, content); err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("send matrix message", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

func extractRoomID(msg *models.Message) (id.RoomID, error) {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["room_id"].(string); ok && v != "" {
			return id.RoomID(v), nil
		}
	}
	if strings.HasPrefix(msg.ConversationID, "matrix:") {
		return id.RoomID(strings.TrimPrefix(msg.ConversationID, "matrix:")), nil
	}
	return "", fmt.Errorf("room_id not found in message")
}

func markdownToHTML(text string) string {
	text = strings.ReplaceAll(text, "**", "<strong>")
	text = strings.ReplaceAll(text, "```", "<pre><code>")
	return text
}

func (a *Adapter) Status() channels.Status          { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot { return a.health.Metrics() }

func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	if _, err := a.client.Whoami(ctx); err != nil {
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
