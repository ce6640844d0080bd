// Package foxglove converts robot telemetry into JSON messages that Foxglove Studio can plot.
package foxglove

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/version"
)

// Topics published by the bridge.
const (
	TopicTelemetry   = "/robot/telemetry"
	TopicDiagnostics = "/diagnostics"
	TopicPose        = "/robot/pose"
)

// Diagnostic levels as used by diagnostic_msgs.
const (
	LevelOK    = 0
	LevelWarn  = 1
	LevelError = 2
)

type Time struct {
	Sec  int64 `json:"sec"`
	Nsec int64 `json:"nsec"`
}

func stamp(t time.Time) Time {
	ns := t.UnixNano()
	return Time{Sec: ns / int64(time.Second), Nsec: ns % int64(time.Second)}
}

type Header struct {
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// Message is one record on a topic.
type Message struct {
	Topic     string `json:"topic"`
	Timestamp Time   `json:"timestamp"`
	Data      any    `json:"data"`
}

// Channel advertises a topic and its JSON schema.
type Channel struct {
	ID         int    `json:"id"`
	Topic      string `json:"topic"`
	Encoding   string `json:"encoding"`
	SchemaName string `json:"schemaName"`
	Schema     string `json:"schema"`
}

type TelemetryData struct {
	Header      Header      `json:"header"`
	Temperature Temperature `json:"temperature"`
	Battery     BatteryInfo `json:"battery"`
	Motor       Motor       `json:"motor"`
	Status      StatusInfo  `json:"status"`
}

type Temperature struct {
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
	Variance float64 `json:"variance"`
}

type BatteryInfo struct {
	Percentage        float64 `json:"percentage"`
	Voltage           float64 `json:"voltage"`
	Current           float64 `json:"current"`
	Charge            float64 `json:"charge"`
	Capacity          float64 `json:"capacity"`
	PowerSupplyStatus int     `json:"power_supply_status"`
}

type Motor struct {
	RPM      int     `json:"rpm"`
	Velocity float64 `json:"velocity"`
	Effort   float64 `json:"effort"`
}

type StatusInfo struct {
	Level   int    `json:"level"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

type DiagnosticArray struct {
	Header Header             `json:"header"`
	Status []DiagnosticStatus `json:"status"`
}

type DiagnosticStatus struct {
	Level      int        `json:"level"`
	Name       string     `json:"name"`
	Message    string     `json:"message"`
	HardwareID string     `json:"hardware_id"`
	Values     []KeyValue `json:"values"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

type PoseStamped struct {
	Header Header `json:"header"`
	Pose   struct {
		Position    Vector3    `json:"position"`
		Orientation Quaternion `json:"orientation"`
	} `json:"pose"`
}

// ServerInfo describes the bridge to a connecting Foxglove client.
type ServerInfo struct {
	Name               string            `json:"name"`
	Capabilities       []string          `json:"capabilities"`
	SupportedEncodings []string          `json:"supportedEncodings"`
	Metadata           map[string]string `json:"metadata"`
	SessionID          string            `json:"sessionId"`
}

// Export is a recording that Foxglove Studio can import.
type Export struct {
	Format   string         `json:"format"`
	Version  string         `json:"version"`
	Channels []Channel      `json:"channels"`
	Messages []Message      `json:"messages"`
	Metadata ExportMetadata `json:"metadata"`
}

type ExportMetadata struct {
	ExportedAt   time.Time `json:"exported_at"`
	MessageCount int       `json:"message_count"`
	DurationSec  float64   `json:"duration_sec"`
}

var channels = []Channel{
	{ID: 1, Topic: TopicTelemetry, SchemaName: "robot_telemetry/Telemetry",
		Schema: objectSchema("header", "temperature", "battery", "motor", "status")},
	{ID: 2, Topic: TopicDiagnostics, SchemaName: "diagnostic_msgs/DiagnosticArray",
		Schema: `{"type":"object","properties":{"header":{"type":"object"},"status":{"type":"array"}}}`},
	{ID: 3, Topic: TopicPose, SchemaName: "geometry_msgs/PoseStamped",
		Schema: objectSchema("header", "pose")},
}

func init() {
	for i := range channels {
		channels[i].Encoding = "json"
	}
}

func objectSchema(props ...string) string {
	p := make(map[string]any, len(props))
	for _, name := range props {
		p[name] = map[string]string{"type": "object"}
	}
	b, _ := json.Marshal(map[string]any{"type": "object", "properties": p})
	return string(b)
}

// Channels lists the advertised topics.
func Channels() []Channel {
	return append([]Channel(nil), channels...)
}

// LookupSchema finds a channel by "robot_telemetry", "robot/telemetry" or "/robot/telemetry" style names.
func LookupSchema(name string) (Channel, bool) {
	name = strings.TrimPrefix(name, "/")
	for _, ch := range channels {
		topic := strings.TrimPrefix(ch.Topic, "/")
		if topic == name || strings.ReplaceAll(topic, "/", "_") == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// Bridge converts samples of one fleet.
type Bridge struct {
	Name      string
	RobotID   string
	StartedAt time.Time
}

func NewBridge(robotID string, startedAt time.Time) *Bridge {
	if robotID == "" {
		robotID = model.DefaultRobotID
	}
	return &Bridge{Name: "Robot Telemetry Bridge", RobotID: robotID, StartedAt: startedAt}
}

func (b *Bridge) Info() ServerInfo {
	return ServerInfo{
		Name:               b.Name,
		Capabilities:       []string{"clientPublish", "time", "parameters"},
		SupportedEncodings: []string{"json"},
		Metadata:           map[string]string{"version": version.Build, "robot_id": b.RobotID},
		SessionID:          fmt.Sprintf("session_%d", b.StartedAt.Unix()),
	}
}

// Convert renders one sample on every topic, in channel order.
func (b *Bridge) Convert(s model.TelemetrySample) []Message {
	return []Message{telemetryMessage(s), diagnosticMessage(s), poseMessage(s)}
}

// Export renders samples (oldest first) into an importable document.
func (b *Bridge) Export(samples []model.TelemetrySample, now time.Time) Export {
	msgs := make([]Message, 0, len(samples)*len(channels))
	for _, s := range samples {
		msgs = append(msgs, b.Convert(s)...)
	}
	var dur float64
	if len(samples) > 1 {
		dur = math.Abs(samples[len(samples)-1].Timestamp.Sub(samples[0].Timestamp).Seconds())
	}
	return Export{
		Format:   "foxglove_bridge_export",
		Version:  "1.0",
		Channels: Channels(),
		Messages: msgs,
		Metadata: ExportMetadata{ExportedAt: now.UTC(), MessageCount: len(msgs), DurationSec: dur},
	}
}

func telemetryMessage(s model.TelemetrySample) Message {
	ts := stamp(s.Timestamp)
	pct := float64(s.Battery) / 100
	supply := 1
	if s.Battery > 20 {
		supply = 2
	}
	data := TelemetryData{
		Header:      Header{Stamp: ts, FrameID: "robot_base"},
		Temperature: Temperature{Value: s.Temperature, Unit: "celsius", Variance: 0.1},
		Battery: BatteryInfo{
			Percentage:        pct,
			Voltage:           12 + pct*2,
			Current:           1.5,
			Charge:            pct * 5,
			Capacity:          5,
			PowerSupplyStatus: supply,
		},
		Motor: Motor{
			RPM:      s.MotorRPM,
			Velocity: float64(s.MotorRPM) * 2 * math.Pi / 60,
			Effort:   math.Abs(float64(s.MotorRPM)) / 1800 * 100,
		},
		Status: StatusInfo{Level: statusLevel(s.Status), Name: string(s.Status), Message: "Robot is " + string(s.Status)},
	}
	return Message{Topic: TopicTelemetry, Timestamp: ts, Data: data}
}

func statusLevel(st model.Status) int {
	switch st {
	case model.StatusWorking:
		return 1
	case model.StatusError:
		return 2
	}
	return 0
}

func diagnosticMessage(s model.TelemetrySample) Message {
	ts := stamp(s.Timestamp)
	level := LevelOK
	if s.Status == model.StatusError {
		level = LevelError
	}
	data := DiagnosticArray{
		Header: Header{Stamp: ts},
		Status: []DiagnosticStatus{{
			Level:      level,
			Name:       "Robot Status",
			Message:    "Robot is " + string(s.Status),
			HardwareID: s.RobotID,
			Values: []KeyValue{
				{Key: "temperature", Value: fmt.Sprintf("%.1f", s.Temperature)},
				{Key: "battery", Value: fmt.Sprint(s.Battery)},
				{Key: "motor_rpm", Value: fmt.Sprint(s.MotorRPM)},
				{Key: "status", Value: string(s.Status)},
			},
		}},
	}
	return Message{Topic: TopicDiagnostics, Timestamp: ts, Data: data}
}

// poseMessage moves a working robot along a triangle wave scaled by motor speed; idle robots sit at the origin.
func poseMessage(s model.TelemetrySample) Message {
	ts := stamp(s.Timestamp)
	var p PoseStamped
	p.Header = Header{Stamp: ts, FrameID: "world"}
	p.Pose.Orientation = Quaternion{W: 1}
	if s.Status == model.StatusWorking {
		t := float64(s.Timestamp.UnixNano()) / 1e9
		speed := float64(s.MotorRPM) / 1800
		p.Pose.Position.X = 2 * speed * math.Abs((math.Mod(t, 10)-5)/5)
		p.Pose.Position.Y = speed * math.Abs((math.Mod(t, 8)-4)/4)
	}
	return Message{Topic: TopicPose, Timestamp: ts, Data: p}
}
