// Package protocol defines the WebSocket messages exchanged between drones,
// observers and the skyfix server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Drone → Server messages
	TypeOpen  MessageType = "open"  // Start a session
	TypeFrame MessageType = "frame" // Camera frame for a session
	TypeClose MessageType = "close" // End a session

	// Server → Drone messages
	TypeSession MessageType = "session" // Session state after open/close
	TypeFix     MessageType = "fix"     // Position fix
	TypeNoFix   MessageType = "no_fix"  // Frame produced no fix
	TypeError   MessageType = "error"   // Request failed

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Drone → Server Message Types
// =============================================================================

// Location kinds
const (
	KindCartesian = "cartesian" // x, y, z in millimetres
	KindGeodetic  = "geodetic"  // lat, lon in degrees, alt in metres
	KindECEF      = "ecef"      // x, y, z earth-centred, in metres
)

// Location is a starting point. Kind selects which fields are read.
type Location struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	Z    float64 `json:"z,omitempty"`
	Lat  float64 `json:"lat,omitempty"`
	Lon  float64 `json:"lon,omitempty"`
	Alt  float64 `json:"alt,omitempty"`
}

// OpenData starts a session
type OpenData struct {
	Start          Location `json:"start"`
	ObjectWidthCm  float64  `json:"object_width_cm"`
	ObjectHeightCm float64  `json:"object_height_cm,omitempty"`
	Strategy       string   `json:"strategy,omitempty"` // "planar", "pose"
	AzimuthDeg     float64  `json:"azimuth_deg,omitempty"`

	// Optional first frame
	Frame *FrameData `json:"frame,omitempty"`
}

// FrameData contains a camera frame, or a detection made on board
type FrameData struct {
	SessionID string `json:"session_id,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Format    string `json:"format,omitempty"` // "jpeg"
	Data      string `json:"data,omitempty"`   // base64 encoded
	FrameID   uint64 `json:"frame_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"` // Capture time, Unix milliseconds

	// Detection replaces Data when the drone runs its own detector.
	Detection *DetectionData `json:"detection,omitempty"`
}

// CloseData ends a session
type CloseData struct {
	SessionID string `json:"session_id"`
}

// =============================================================================
// Server → Drone Message Types
// =============================================================================

// SessionData describes a session after open or close
type SessionData struct {
	SessionID string `json:"session_id"`
	Strategy  string `json:"strategy,omitempty"`
	Anchored  bool   `json:"anchored"`
	Closed    bool   `json:"closed,omitempty"`
}

// DetectionData is a detected object. Box is [x1, y1, x2, y2] in pixels.
type DetectionData struct {
	Label string     `json:"label,omitempty"`
	Score float64    `json:"score,omitempty"`
	Box   [4]float64 `json:"box"`
}

// PlanarData is a position in the session's local frame, in millimetres
type PlanarData struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	DistanceMm     float64 `json:"distance_mm"`
	DX             float64 `json:"dx"`
	DY             float64 `json:"dy"`
	PixelDX        float64 `json:"pixel_dx"`
	PixelDY        float64 `json:"pixel_dy"`
	ObjectHeightMm float64 `json:"object_height_mm"`
}

// GeoData is a geodetic position
type GeoData struct {
	Lat                float64    `json:"lat"`
	Lon                float64    `json:"lon"`
	AltitudeM          float64    `json:"altitude_m"`
	DistanceFromStartM float64    `json:"distance_from_start_m"`
	North              float64    `json:"north_m"`
	East               float64    `json:"east_m"`
	ECEF               [3]float64 `json:"ecef"`
}

// FixData is one position fix
type FixData struct {
	SessionID string         `json:"session_id"`
	FrameID   uint64         `json:"frame_id,omitempty"`
	Strategy  string         `json:"strategy"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
	Home      bool           `json:"home,omitempty"`
	Planar    *PlanarData    `json:"planar,omitempty"`
	Geo       *GeoData       `json:"geo,omitempty"`
	Detection *DetectionData `json:"detection,omitempty"`
}

// NoFixData reports a frame that produced no fix. The session is unchanged.
type NoFixData struct {
	SessionID string `json:"session_id"`
	FrameID   uint64 `json:"frame_id,omitempty"`
	Reason    string `json:"reason"`
	Message   string `json:"message,omitempty"`
}

// ErrorData reports a failed request
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
