package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"robot-telemetry/pkg/command"
	"robot-telemetry/pkg/hub"
	"robot-telemetry/pkg/model"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadLimit    = 64 << 10
)

// WSServer upgrades dashboard connections and attaches them to the hub as sessions.
type WSServer struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	commands *command.Channel
}

func NewWSServer(h *hub.Hub, commands *command.Channel) *WSServer {
	return &WSServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		hub:      h,
		commands: commands,
	}
}

// HandleWS serves GET /ws. ?channels=telemetry,alerts subscribes right away.
func (s *WSServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	var channels []string
	if raw := r.URL.Query().Get("channels"); raw != "" {
		for _, ch := range strings.Split(raw, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
	}
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed remote=%s err=%v", r.RemoteAddr, err)
		return
	}
	sender := &wsSender{conn: c}
	sess, err := s.hub.ConnectWith(sender, connectionStatus, channels...)
	if err != nil {
		_ = sender.Send(model.WSMessage{Type: model.MsgError, Payload: model.ErrorMessage{Message: err.Error()}})
		_ = sender.Close()
		return
	}
	go s.readLoop(sess.ID, c)
}

func connectionStatus(sessionID string) model.WSMessage {
	return model.WSMessage{
		Type: model.MsgConnectionStatus,
		Payload: model.ConnectionStatus{
			Status:   "connected",
			ClientID: sessionID,
			Message:  "Connected to telemetry server",
		},
	}
}

func (s *WSServer) readLoop(sessionID string, c *websocket.Conn) {
	defer s.hub.Disconnect(sessionID)
	c.SetReadLimit(wsReadLimit)
	for {
		var msg model.InboundMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("ws read from %s ended: %v", sessionID, err)
			}
			return
		}
		s.dispatch(sessionID, msg)
	}
}

func (s *WSServer) dispatch(sessionID string, msg model.InboundMessage) {
	reply := func(m model.WSMessage) {
		if err := s.hub.SendTo(sessionID, m); err != nil {
			log.Printf("ws reply to %s dropped: %v", sessionID, err)
		}
	}
	fail := func(text string) {
		reply(model.WSMessage{Type: model.MsgError, Payload: model.ErrorMessage{Message: text}})
	}

	switch msg.Type {
	case model.MsgSubscribe, model.MsgUnsubscribe:
		var req model.ChannelRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			fail("invalid payload")
			return
		}
		op, ack := s.hub.Subscribe, model.MsgSubscribed
		if msg.Type == model.MsgUnsubscribe {
			op, ack = s.hub.Unsubscribe, model.MsgUnsubscribed
		}
		if err := op(sessionID, req.Channel); err != nil {
			if errors.Is(err, hub.ErrUnknownChannel) {
				fail("unknown channel: " + req.Channel)
			}
			return
		}
		reply(model.WSMessage{Type: ack, Payload: req})
	case model.MsgPing:
		reply(model.WSMessage{Type: model.MsgPong, Payload: model.Pong{Timestamp: time.Now().UTC()}})
	case model.MsgCommand:
		var req model.CommandRequest
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				fail("invalid payload")
				return
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// the channel pushes command_result to this session
		s.commands.Submit(ctx, sessionID, req.RobotID, req.Command)
	default:
		fail("unknown message type: " + msg.Type)
	}
}

// wsSender writes hub messages to one connection. Only the session writer calls Send.
type wsSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsSender) Send(msg model.WSMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return w.conn.WriteJSON(msg)
}

// Close may run concurrently with Send; WriteControl and Close are safe for that.
func (w *wsSender) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return w.conn.Close()
}
