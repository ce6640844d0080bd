package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"robot-telemetry/pkg/model"
)

func TestHTTPPull(t *testing.T) {
	var gotCommand model.CommandRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/api/telemetry/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("robot_id") != "robot_002" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "No telemetry data for robot 'x'"})
			return
		}
		_ = json.NewEncoder(w).Encode(sample(5))
	})
	mux.HandleFunc("/api/telemetry/history", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode(historyPage{Count: 2, Data: []model.TelemetrySample{sample(2), sample(1)}})
	})
	mux.HandleFunc("/api/robot/command", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotCommand)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(model.CommandResult{Message: "Invalid command. Valid commands: start, stop, reset"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := NewHTTPPull(srv.URL+"/", nil)
	ctx := context.Background()
	s, err := p.Latest(ctx, "robot_002")
	if err != nil || !s.Timestamp.Equal(sample(5).Timestamp) {
		t.Fatalf("Latest = %+v, %v", s, err)
	}
	if _, err := p.Latest(ctx, "robot_404"); err == nil || !strings.Contains(err.Error(), "No telemetry data") {
		t.Fatalf("Latest missing robot err = %v", err)
	}
	hist, err := p.History(ctx, "robot_002", 2)
	if err != nil || len(hist) != 2 {
		t.Fatalf("History = %v, %v", hist, err)
	}
	res, err := p.Command(ctx, "robot_002", "jump")
	if err != nil || res.Success || !strings.HasPrefix(res.Message, "Invalid command") {
		t.Fatalf("Command = %+v, %v", res, err)
	}
	if gotCommand.Command != "jump" || gotCommand.RobotID != "robot_002" {
		t.Fatalf("server got %+v", gotCommand)
	}
}

func TestNewWSPushEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8000":       "ws://localhost:8000/ws",
		"https://example.com/robots/": "wss://example.com/robots/ws",
	}
	for in, want := range cases {
		p, err := NewWSPush(in)
		if err != nil {
			t.Fatalf("NewWSPush(%q): %v", in, err)
		}
		if p.Endpoint() != want {
			t.Fatalf("NewWSPush(%q) = %q, want %q", in, p.Endpoint(), want)
		}
	}
	if _, err := NewWSPush("ftp://x"); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	samples []model.TelemetrySample
	alerts  []model.AlertEvent
	closed  chan error
}

func (h *recordingHandler) OnSample(s model.TelemetrySample) {
	h.mu.Lock()
	h.samples = append(h.samples, s)
	h.mu.Unlock()
}

func (h *recordingHandler) OnAlert(a model.AlertEvent) {
	h.mu.Lock()
	h.alerts = append(h.alerts, a)
	h.mu.Unlock()
}

func (h *recordingHandler) OnCommandResult(model.CommandResult) {}
func (h *recordingHandler) OnClose(err error)                   { h.closed <- err }

func TestWSPushDeliversFrames(t *testing.T) {
	subs := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var msg model.InboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			var req model.ChannelRequest
			_ = json.Unmarshal(msg.Payload, &req)
			subs <- msg.Type + ":" + req.Channel
		}
		_ = conn.WriteJSON(model.WSMessage{Type: model.MsgTelemetryUpdate, Payload: sample(1)})
		_ = conn.WriteJSON(model.WSMessage{Type: model.MsgAlert, Payload: model.AlertEvent{Category: model.CategoryFault}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	p, err := NewWSPush(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	h := &recordingHandler{closed: make(chan error, 1)}
	conn, err := p.Dial(context.Background(), h)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	for _, ch := range []string{"telemetry", "alerts"} {
		if err := conn.Subscribe(ch); err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
	}
	if got := <-subs; got != "subscribe:telemetry" {
		t.Fatalf("first frame = %s", got)
	}
	select {
	case err := <-h.closed:
		var ce *websocket.CloseError
		if !errors.As(err, &ce) || ce.Code != websocket.CloseNormalClosure {
			t.Fatalf("close err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection never closed")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) != 1 || len(h.alerts) != 1 {
		t.Fatalf("samples = %d alerts = %d", len(h.samples), len(h.alerts))
	}
}

func TestWSPushDialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	p, _ := NewWSPush(srv.URL)
	if _, err := p.Dial(context.Background(), &recordingHandler{}); err == nil || !strings.Contains(err.Error(), "status=404") {
		t.Fatalf("Dial err = %v", err)
	}
}
