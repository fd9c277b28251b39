package protocol

import (
	"encoding/base64"
	"errors"
	"time"
)

// ErrNoFrameData is returned when a frame carries neither image data nor a
// detection.
var ErrNoFrameData = errors.New("protocol: frame has no data")

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewOpenMessage creates an open message
func NewOpenMessage(open OpenData) (*Message, error) {
	return NewMessage(TypeOpen, open)
}

// NewFrameData wraps raw JPEG data for a session
func NewFrameData(sessionID string, width, height int, jpegData []byte, frameID uint64, captured time.Time) FrameData {
	f := FrameData{
		SessionID: sessionID,
		Width:     width,
		Height:    height,
		Format:    "jpeg",
		Data:      base64.StdEncoding.EncodeToString(jpegData),
		FrameID:   frameID,
	}
	if !captured.IsZero() {
		f.Timestamp = captured.UnixMilli()
	}
	return f
}

// NewFrameMessage creates a frame message from raw JPEG data
func NewFrameMessage(sessionID string, width, height int, jpegData []byte, frameID uint64) (*Message, error) {
	return NewMessage(TypeFrame, NewFrameData(sessionID, width, height, jpegData, frameID, time.Now()))
}

// NewCloseMessage creates a close message
func NewCloseMessage(sessionID string) (*Message, error) {
	return NewMessage(TypeClose, CloseData{SessionID: sessionID})
}

// NewSessionMessage creates a session message
func NewSessionMessage(session SessionData) (*Message, error) {
	return NewMessage(TypeSession, session)
}

// NewFixMessage creates a fix message
func NewFixMessage(fix FixData) (*Message, error) {
	return NewMessage(TypeFix, fix)
}

// NewNoFixMessage creates a no_fix message
func NewNoFixMessage(sessionID string, frameID uint64, reason, message string) (*Message, error) {
	return NewMessage(TypeNoFix, NoFixData{
		SessionID: sessionID,
		FrameID:   frameID,
		Reason:    reason,
		Message:   message,
	})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Code: code, Message: message})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetOpenData extracts open data from a message
func (m *Message) GetOpenData() (*OpenData, error) {
	var data OpenData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCloseData extracts close data from a message
func (m *Message) GetCloseData() (*CloseData, error) {
	var data CloseData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSessionData extracts session data from a message
func (m *Message) GetSessionData() (*SessionData, error) {
	var data SessionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFixData extracts fix data from a message
func (m *Message) GetFixData() (*FixData, error) {
	var data FixData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetNoFixData extracts no_fix data from a message
func (m *Message) GetNoFixData() (*NoFixData, error) {
	var data NoFixData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetErrorData extracts error data from a message
func (m *Message) GetErrorData() (*ErrorData, error) {
	var data ErrorData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeFrameData decodes the base64 image data
func (f *FrameData) DecodeFrameData() ([]byte, error) {
	if f.Data == "" {
		return nil, ErrNoFrameData
	}
	return base64.StdEncoding.DecodeString(f.Data)
}

// CapturedAt returns the capture time, or the zero time when unset
func (f *FrameData) CapturedAt() time.Time {
	if f.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(f.Timestamp)
}
