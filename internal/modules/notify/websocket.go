package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/eskrenkovic/numbers-party/internal/modules/core"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type WebSocketConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// WebSocketHandler streams broker events to a connected client. The
// connection is closed when the subscription is dropped, which clients
// treat as a signal to reconnect and re-fetch.
type WebSocketHandler struct {
	broker   *Broker
	clock    clockwork.Clock
	upgrader websocket.Upgrader
	cfg      WebSocketConfig
}

func NewWebSocketHandler(broker *Broker, clock clockwork.Clock, cfg WebSocketConfig) *WebSocketHandler {
	return &WebSocketHandler{
		broker: broker,
		clock:  clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg: cfg,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := core.Logger(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	sub := h.broker.Subscribe()
	logger = logger.With(zap.String("subscription_id", sub.ID.String()))

	if session := core.Session(r.Context()); session.Username != "" {
		logger = logger.With(zap.String("username", session.Username))
	}

	logger.Info("websocket connection established")

	done := make(chan struct{})
	go h.readPump(conn, done, logger)
	h.writePump(conn, sub, done, logger)

	logger.Info("websocket connection closed")
}

func (h *WebSocketHandler) writePump(
	conn *websocket.Conn,
	sub *Subscription,
	done <-chan struct{},
	logger *zap.Logger,
) {
	ticker := h.clock.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	if err := h.write(conn, websocket.TextMessage, mustMarshal(ResyncEvent(h.clock.Now()))); err != nil {
		return
	}

	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.Events():
			if !ok {
				_ = h.write(conn, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resync"))
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := h.write(conn, websocket.TextMessage, data); err != nil {
				logger.Debug("failed to write event", zap.Error(err))
				return
			}
		case <-ticker.Chan():
			if err := h.write(conn, websocket.PingMessage, nil); err != nil {
				logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// readPump only services control frames. Client messages are ignored.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, done chan<- struct{}, logger *zap.Logger) {
	defer close(done)

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(h.clock.Now().Add(h.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(h.clock.Now().Add(h.cfg.ReadTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected websocket close", zap.Error(err))
			}
			return
		}

		_ = conn.SetReadDeadline(h.clock.Now().Add(h.cfg.ReadTimeout))
	}
}

func (h *WebSocketHandler) write(conn *websocket.Conn, messageType int, data []byte) error {
	if err := conn.SetWriteDeadline(h.clock.Now().Add(h.cfg.WriteTimeout)); err != nil {
		return err
	}

	return conn.WriteMessage(messageType, data)
}

func mustMarshal(event Event) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		panic(err)
	}

	return data
}
