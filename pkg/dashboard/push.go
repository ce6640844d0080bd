package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/version"
)

const writeWait = 10 * time.Second

// WSPush dials the server's push channel.
type WSPush struct {
	endpoint string
	dialer   *websocket.Dialer
}

// NewWSPush derives the push endpoint from the server's base URL (http -> ws, https -> wss).
func NewWSPush(serverURL string) (*WSPush, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws", "":
		u.Scheme = "ws"
	default:
		return nil, fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 5 * time.Second
	return &WSPush{endpoint: u.String(), dialer: &d}, nil
}

func (p *WSPush) Endpoint() string { return p.endpoint }

func (p *WSPush) Dial(ctx context.Context, h PushHandler) (PushConn, error) {
	header := http.Header{}
	header.Set("User-Agent", version.UserAgent())
	conn, resp, err := p.dialer.DialContext(ctx, p.endpoint, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, fmt.Errorf("ws dial %s (status=%d): %w", p.endpoint, status, err)
	}
	log.Printf("ws connected url=%s", p.endpoint)
	c := &wsConn{conn: conn}
	go c.readLoop(h)
	return c, nil
}

type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) readLoop(h PushHandler) {
	for {
		var msg model.InboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			h.OnClose(err)
			return
		}
		switch msg.Type {
		case model.MsgTelemetryUpdate:
			var s model.TelemetrySample
			if decode(msg, &s) {
				h.OnSample(s)
			}
		case model.MsgAlert:
			var a model.AlertEvent
			if decode(msg, &a) {
				h.OnAlert(a)
			}
		case model.MsgCommandResult:
			var r model.CommandResult
			if decode(msg, &r) {
				h.OnCommandResult(r)
			}
		case model.MsgError:
			var e model.ErrorMessage
			if decode(msg, &e) {
				log.Printf("ws server error: %s", e.Message)
			}
		default:
			log.Printf("ws recv type=%s", msg.Type)
		}
	}
}

func decode(msg model.InboundMessage, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		log.Printf("ws bad %s payload: %v", msg.Type, err)
		return false
	}
	return true
}

func (c *wsConn) Subscribe(channel string) error {
	return c.send(model.WSMessage{Type: model.MsgSubscribe, Payload: model.ChannelRequest{Channel: channel}})
}

func (c *wsConn) send(msg model.WSMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *wsConn) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
