// Package whatsapp adapts go.mau.fi/whatsmeow into a channels.FullAdapter.
// Pairing is device-linked via QR code (rendered with skip2/go-qrcode for
// terminal/log display) on first Start; subsequent starts reuse the
// device persisted in the sqlite session store.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds the WhatsApp adapter's connection settings.
type Config struct {
	SessionPath string // path to the sqlite device store
	Logger      *slog.Logger
}

func (c *Config) validate() error {
	if c.SessionPath == "" {
		c.SessionPath = "./data/whatsapp.db"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for WhatsApp.
type Adapter struct {
	cfg       Config
	store     *sqlstore.Container
	client    *whatsmeow.Client
	messages  chan *models.Message
	connected bool
	connMu    sync.RWMutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *slog.Logger
	health    *channels.BaseHealthAdapter
}

// New opens the sqlite device store without connecting to WhatsApp.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SessionPath), 0o755); err != nil {
		return nil, channels.ErrConfig("create whatsapp session directory", err)
	}
	logger := cfg.Logger.With("adapter", "whatsapp")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", cfg.SessionPath), waLog.Noop)
	if err != nil {
		return nil, channels.ErrConnection("open whatsapp session store", err)
	}

	return &Adapter{
		cfg:      cfg,
		store:    container,
		messages: make(chan *models.Message, 100),
		logger:   logger,
		health:   channels.NewBaseHealthAdapter(models.ChannelWhatsApp, logger),
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelWhatsApp }

// Start connects to WhatsApp. If the store has no linked device, a QR
// pairing code is rendered to the log as ASCII art and the login flow
// resumes once the user scans it.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	device, err := a.store.GetFirstDevice(ctx)
	if err != nil {
		return channels.ErrConnection("get whatsapp device", err)
	}
	a.client = whatsmeow.NewClient(device, waLog.Noop)
	a.client.AddEventHandler(a.handleEvent)

	if a.client.Store.ID == nil {
		qrChan, err := a.client.GetQRChannel(ctx)
		if err != nil {
			return channels.ErrAuthentication("get whatsapp qr channel", err)
		}
		if err := a.client.Connect(); err != nil {
			return channels.ErrConnection("connect whatsapp client", err)
		}
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case evt, ok := <-qrChan:
					if !ok {
						return
					}
					if evt.Event == "code" {
						a.logPairingCode(evt.Code)
					}
				}
			}
		}()
	} else if err := a.client.Connect(); err != nil {
		return channels.ErrConnection("connect whatsapp client", err)
	}

	a.health.RecordConnectionOpened()
	return nil
}

func (a *Adapter) logPairingCode(code string) {
	art, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		a.logger.Warn("scan this code to link whatsapp", "code", code)
		return
	}
	a.logger.Info("scan this code to link whatsapp", "code", code, "qr", art.ToSmallString(false))
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
	if a.client != nil {
		a.client.Disconnect()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close whatsapp session store", "error", err)
	}
	a.health.SetStatus(false, "")
	a.health.RecordConnectionClosed()
	close(a.messages)
	return nil
}

func (a *Adapter) handleEvent(evt any) {
	switch v := evt.(type) {
	case *events.Connected:
		a.connMu.Lock()
		a.connected = true
		a.connMu.Unlock()
		a.health.SetStatus(true, "")
	case *events.Disconnected:
		a.connMu.Lock()
		a.connected = false
		a.connMu.Unlock()
		a.health.SetStatus(false, "disconnected")
	case *events.LoggedOut:
		a.connMu.Lock()
		a.connected = false
		a.connMu.Unlock()
		a.health.SetStatus(false, fmt.Sprintf("logged out: %v", v.Reason))
	case *events.Message:
		a.handleMessage(v)
	}
}

func (a *Adapter) handleMessage(evt *events.Message) {
	if evt.Info.Chat.Server == "broadcast" {
		return
	}
	var content string
	switch {
	case evt.Message.Conversation != nil:
		content = *evt.Message.Conversation
	case evt.Message.ExtendedTextMessage != nil:
		content = evt.Message.ExtendedTextMessage.GetText()
	case evt.Message.ImageMessage != nil:
		content = evt.Message.ImageMessage.GetCaption()
	case evt.Message.DocumentMessage != nil:
		content = evt.Message.DocumentMessage.GetCaption()
	case evt.Message.VideoMessage != nil:
		content = evt.Message.VideoMessage.GetCaption()
	}
	if content == "" {
		return
	}

	start := time.Now()
	msg := &models.Message{
		ID:             fmt.Sprintf("whatsapp_%s", evt.Info.ID),
		ConversationID: fmt.Sprintf("whatsapp:%s", evt.Info.Chat.String()),
		UserID:         evt.Info.Sender.String(),
		Role:           models.RoleUser,
		Content:        content,
		CreatedAt:      evt.Info.Timestamp,
		Metadata: map[string]any{
			"peer_id":  evt.Info.Sender.String(),
			"is_group": evt.Info.IsGroup,
		},
	}
	a.health.RecordMessageReceived()
	a.health.RecordReceiveLatency(time.Since(start))
	select {
	case a.messages <- msg:
		a.health.UpdateLastPing()
	default:
		a.logger.Warn("messages channel full, dropping message", "chat", evt.Info.Chat.String())
		a.health.RecordMessageFailed()
	}
}

func (a *Adapter) Messages() <-chan *models.Message { return a.messages }

// Send delivers msg.Content to the peer JID encoded in
// msg.Metadata["peer_id"] or the ConversationID's "whatsapp:<jid>" form.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	if !a.isConnected() {
		return channels.ErrUnavailable("not connected to whatsapp", nil)
	}
	jid, err := extractJID(msg)
	if err != nil {
		return channels.ErrInvalidInput("extract whatsapp jid", err)
	}
	start := time.Now()
	_, err = a.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(msg.Content)})
	if err != nil {
		a.health.RecordMessageFailed()
		a.health.RecordError(channels.ErrCodeInternal)
		return channels.ErrInternal("send whatsapp message", err)
	}
	a.health.RecordMessageSent()
	a.health.RecordSendLatency(time.Since(start))
	return nil
}

func extractJID(msg *models.Message) (types.JID, error) {
	if msg.Metadata != nil {
		if v, ok := msg.Metadata["peer_id"].(string); ok && v != "" {
			return types.ParseJID(v)
		}
	}
	var raw string
	if _, err := fmt.Sscanf(msg.ConversationID, "whatsapp:%s", &raw); err == nil && raw != "" {
		return types.ParseJID(raw)
	}
	return types.JID{}, fmt.Errorf("peer_id not found in message")
}

func (a *Adapter) isConnected() bool {
	a.connMu.RLock()
	defer a.connMu.RUnlock()
	return a.connected
}

func (a *Adapter) Status() channels.Status          { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot { return a.health.Metrics() }

func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	start := time.Now()
	if a.client == nil || !a.client.IsConnected() {
		return channels.HealthStatus{Message: "not connected", LastCheck: start, Latency: time.Since(start)}
	}
	return channels.HealthStatus{
		Healthy:   true,
		Message:   "connected",
		LastCheck: start,
		Latency:   time.Since(start),
		Degraded:  a.health.IsDegraded(),
	}
}
