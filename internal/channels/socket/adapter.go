// Package socket adapts github.com/gorilla/websocket into a
// channels.FullAdapter for the GUI/avatar surface: a browser or
// desktop client connects over a single WebSocket and exchanges the
// same req/res/event frame shape the rest of the gateway already
// speaks, translated at the edges into pkg/models.Message values.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hearthai/hearth/internal/channels"
	"github.com/hearthai/hearth/pkg/models"
)

const (
	maxPayloadBytes = 1 << 20
	pongWait        = 45 * time.Second
	pingInterval    = 15 * time.Second
	writeWait       = 10 * time.Second
)

// Config holds the GUI socket adapter's connection settings.
type Config struct {
	ListenAddr string
	AuthToken  string
	Logger     *slog.Logger
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return channels.ErrConfig("listen_addr is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.FullAdapter for the GUI/avatar
// WebSocket surface.
type Adapter struct {
	cfg      Config
	upgrader websocket.Upgrader
	server   *http.Server
	messages chan *models.Message
	logger   *slog.Logger
	health   *channels.BaseHealthAdapter

	wg sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates a GUI socket adapter. The HTTP listener starts on Start.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger.With("adapter", "socket")
	return &Adapter{
		cfg:      cfg,
		messages: make(chan *models.Message, 100),
		logger:   logger,
		health:   channels.NewBaseHealthAdapter(models.ChannelAPI, logger),
		sessions: make(map[string]*session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}, nil
}

func (a *Adapter) Type() models.ChannelType { return models.ChannelAPI }

// Start begins serving the WebSocket endpoint in the background.
func (a *Adapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", a.handleUpgrade)
	a.server = &http.Server{Addr: a.cfg.ListenAddr, Handler: mux}

	ln := make(chan error, 1)
	go func() {
		err := a.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			ln <- err
			return
		}
		ln <- nil
	}()

	select {
	case err := <-ln:
		if err != nil {
			a.health.SetStatus(false, err.Error())
			a.health.RecordError(channels.ErrCodeConnection)
			return channels.ErrConnection("start gui socket listener", err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	a.health.SetStatus(true, "")
	a.health.RecordConnectionOpened()
	a.logger.Info("gui socket listening", "addr", a.cfg.ListenAddr)
	return nil
}

// Stop shuts the HTTP listener down gracefully and closes every
// connected session.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	for _, s := range a.sessions {
		s.close()
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return channels.ErrTimeout("stop timeout waiting for gui sessions", ctx.Err())
	}
	close(a.messages)

	a.health.SetStatus(false, "")
	a.health.RecordConnectionClosed()
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *Adapter) Messages() <-chan *models.Message {
	return a.messages
}

// Send delivers an assistant reply to the session whose conversation
// ID matches msg.ConversationID. If no session is connected the
// message is dropped; the GUI surface has no offline mailbox.
func (a *Adapter) Send(ctx context.Context, msg *models.Message) error {
	a.mu.RLock()
	s, ok := a.sessions[msg.ConversationID]
	a.mu.RUnlock()
	if !ok {
		a.health.RecordMessageFailed()
		return channels.ErrNotFound("no connected gui session for conversation "+msg.ConversationID, nil)
	}
	start := time.Now()
	err := s.sendEvent("chat.complete", map[string]any{
		"conversationId": msg.ConversationID,
		"messageId":      msg.ID,
		"content":        msg.Content,
		"createdAt":      msg.CreatedAt,
	})
	a.health.RecordSendLatency(time.Since(start))
	if err != nil {
		a.health.RecordMessageFailed()
		return channels.ErrConnection("send to gui session", err)
	}
	a.health.RecordMessageSent()
	return nil
}

func (a *Adapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if a.cfg.AuthToken != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token != a.cfg.AuthToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.health.RecordError(channels.ErrCodeConnection)
		return
	}

	a.wg.Add(1)
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(r.Context())
	s := &session{
		adapter: a,
		conn:    conn,
		id:      "api:" + uuid.NewString(),
		send:    make(chan []byte, 64),
		ctx:     ctx,
		cancel:  cancel,
	}

	a.mu.Lock()
	a.sessions[s.id] = s
	a.mu.Unlock()

	s.run()

	a.mu.Lock()
	delete(a.sessions, s.id)
	a.mu.Unlock()
}

// frame is the wire shape shared by requests, responses, and
// server-pushed events.
type frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload any             `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type sendParams struct {
	Content string `json:"content"`
}

type session struct {
	adapter *Adapter
	conn    *websocket.Conn
	send    chan []byte
	ctx     context.Context
	cancel  context.CancelFunc
	id      string
}

func (s *session) run() {
	defer s.closeConn()
	go s.writeLoop()
	s.readLoop()
}

// close forces the blocking read loop to unblock by closing the
// underlying connection; closeConn (run via defer once run returns)
// performs the rest of the teardown.
func (s *session) close() {
	s.cancel()
	_ = s.conn.Close()
}

func (s *session) closeConn() {
	s.cancel()
	close(s.send)
	_ = s.conn.Close()
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(maxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			s.sendError("", "invalid_frame")
			continue
		}

		switch f.Method {
		case "ping":
			_ = s.sendResponse(f.ID, map[string]any{"timestamp": time.Now().UnixMilli()})
		case "chat.send":
			s.handleChatSend(f)
		default:
			s.sendError(f.ID, fmt.Sprintf("unknown method %q", f.Method))
		}
	}
}

func (s *session) handleChatSend(f frame) {
	var params sendParams
	if err := json.Unmarshal(f.Params, &params); err != nil {
		s.sendError(f.ID, "invalid params")
		return
	}
	if strings.TrimSpace(params.Content) == "" {
		s.sendError(f.ID, "content is required")
		return
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: s.id,
		UserID:         s.id,
		Role:           models.RoleUser,
		Content:        params.Content,
		CreatedAt:      time.Now(),
	}
	select {
	case s.adapter.messages <- msg:
		s.adapter.health.RecordMessageReceived()
		_ = s.sendResponse(f.ID, map[string]any{"status": "accepted"})
	default:
		s.sendError(f.ID, "inbound queue full")
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

func (s *session) sendResponse(id string, payload any) error {
	return s.enqueue(frame{Type: "res", ID: id, Payload: payload})
}

func (s *session) sendEvent(event string, payload any) error {
	return s.enqueue(frame{Type: "event", Event: event, Payload: payload})
}

func (s *session) sendError(id string, message string) {
	_ = s.enqueue(frame{Type: "res", ID: id, Error: message})
}

func (s *session) enqueue(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

func (a *Adapter) Status() channels.Status           { return a.health.Status() }
func (a *Adapter) Metrics() channels.MetricsSnapshot { return a.health.Metrics() }
func (a *Adapter) HealthCheck(ctx context.Context) channels.HealthStatus {
	return a.health.HealthCheck(ctx)
}

var (
	_ channels.FullAdapter = (*Adapter)(nil)
)
