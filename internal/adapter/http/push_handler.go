package http

import (
	"net/http"
	"time"

	"github.com/YelzhanWeb/orderflow/internal/adapter/logger"
	"github.com/YelzhanWeb/orderflow/internal/domain"
	"github.com/YelzhanWeb/orderflow/internal/hub"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

// PushHandler serves the websocket push channel. Each connection registers
// with the hub and receives frames for the topics it joined.
type PushHandler struct {
	hub      *hub.Hub
	logger   logger.Logger
	upgrader websocket.Upgrader

	pingPeriod time.Duration
	pongWait   time.Duration
}

func NewPushHandler(h *hub.Hub, checkOrigin func(r *http.Request) bool, logger logger.Logger) *PushHandler {
	return &PushHandler{
		hub:    h,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
	}
}

func (h *PushHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.ServeWS).Methods(http.MethodGet)
}

func (h *PushHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	actor := Identity(r.Context())
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws_upgrade_failed", "Websocket upgrade failed", RequestID(r.Context()), map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	connID := uuid.NewString()
	sub := h.hub.Register(connID)
	if actor.Role.IsStaff() {
		for _, topic := range domain.BroadcastTopics() {
			h.hub.Subscribe(connID, topic)
		}
		h.hub.Subscribe(connID, domain.StaffTopic(actor.ID))
	}

	h.logger.Info("ws_connected", "Push connection opened", connID, map[string]interface{}{
		"staff_id": actor.ID,
		"role":     actor.Role,
	})

	replies := make(chan PushFrame, 8)
	done := make(chan struct{})
	go h.writeLoop(conn, sub, replies, done)

	h.readLoop(conn, connID, actor, replies)

	h.hub.Remove(connID)
	<-done
	conn.Close()
	h.logger.Info("ws_disconnected", "Push connection closed", connID, map[string]interface{}{
		"staff_id": actor.ID,
		"dropped":  sub.Dropped(),
	})
}

// readLoop handles join and leave requests until the connection fails.
func (h *PushHandler) readLoop(conn *websocket.Conn, connID string, actor domain.StaffIdentity, replies chan<- PushFrame) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(h.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws_read_failed", "Push connection read failed", connID, map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		reply := h.handleMessage(connID, actor, msg)
		select {
		case replies <- reply:
		default:
		}
	}
}

func (h *PushHandler) handleMessage(connID string, actor domain.StaffIdentity, msg ClientMessage) PushFrame {
	topic := msg.Topic()
	if topic == "" {
		return PushFrame{Type: FrameError, Message: "message does not name a topic"}
	}

	switch msg.Type {
	case MessageJoinStaff, MessageJoinTable, MessageJoinLocation, MessageJoinServicePoint:
		if !joinMatches(msg) {
			return PushFrame{Type: FrameError, Message: msg.Type + " requires its matching id"}
		}
		if msg.Type == MessageJoinStaff {
			if !actor.Role.IsStaff() {
				return PushFrame{Type: FrameError, Message: "staff topics require a staff identity"}
			}
			if msg.StaffID != actor.ID && !actor.IsAdmin() {
				return PushFrame{Type: FrameError, Message: "cannot join another staff member's topic"}
			}
		}
		if err := h.hub.Subscribe(connID, topic); err != nil {
			return PushFrame{Type: FrameError, Message: err.Error()}
		}
	case MessageLeave:
		h.hub.Unsubscribe(connID, topic)
	default:
		return PushFrame{Type: FrameError, Message: "unknown message type " + msg.Type}
	}

	topics := h.hub.Topics(connID)
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = string(t)
	}
	return PushFrame{Type: FrameSubscribed, Topics: names}
}

func joinMatches(msg ClientMessage) bool {
	switch msg.Type {
	case MessageJoinStaff:
		return msg.StaffID != ""
	case MessageJoinTable:
		return msg.TableID != ""
	case MessageJoinLocation:
		return msg.LocationID != ""
	case MessageJoinServicePoint:
		return msg.ServicePointID != ""
	}
	return false
}

// writeLoop is the only writer on conn. It exits when the hub closes the
// subscriber queue or a write fails.
func (h *PushHandler) writeLoop(conn *websocket.Conn, sub *hub.Subscriber, replies <-chan PushFrame, done chan<- struct{}) {
	ticker := time.NewTicker(h.pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	write := func(frame PushFrame) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return false
		}
		return true
	}

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			frame, known := FrameFor(event)
			if known && !write(frame) {
				h.drain(sub)
				return
			}
		case reply := <-replies:
			if !write(reply) {
				h.drain(sub)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				h.drain(sub)
				return
			}
		}
	}
}

// drain waits for the hub to close the queue after the read loop exits.
func (h *PushHandler) drain(sub *hub.Subscriber) {
	for range sub.Events() {
	}
}
