package cloud

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/teslashibe/go-skyfix/pkg/protocol"
	"github.com/teslashibe/go-skyfix/pkg/tracking"
)

// DroneConnection is a connected drone stream. A connection follows at most
// one session at a time; binary frames are routed to it.
type DroneConnection struct {
	ID        string
	Conn      *websocket.Conn
	Connected time.Time

	mu        sync.Mutex
	lastSeen  time.Time
	sessionID string
	frameID   uint64
}

// Send sends a message to the drone
func (d *DroneConnection) Send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Conn.WriteMessage(websocket.TextMessage, data)
}

// SessionID returns the session the connection currently follows.
func (d *DroneConnection) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

func (d *DroneConnection) follow(sessionID string) {
	d.mu.Lock()
	d.sessionID = sessionID
	d.frameID = 0
	d.mu.Unlock()
}

func (d *DroneConnection) unfollow(sessionID string) {
	d.mu.Lock()
	if d.sessionID == sessionID {
		d.sessionID = ""
	}
	d.mu.Unlock()
}

func (d *DroneConnection) seen() {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()
}

// nextFrame numbers frames that arrive without an id.
func (d *DroneConnection) nextFrame() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frameID++
	return d.frameID
}

// DroneInfo contains info about a connected drone
type DroneInfo struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id,omitempty"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
}

// StreamStats contains stream statistics
type StreamStats struct {
	DroneCount       int    `json:"drone_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
}

// handleStream serves one drone connection. Disconnecting does not close
// the session; a later connection may resume it with frames that name it.
func (s *Server) handleStream(c *websocket.Conn) {
	now := time.Now()
	drone := &DroneConnection{
		ID:        uuid.NewString(),
		Conn:      c,
		Connected: now,
		lastSeen:  now,
		sessionID: c.Query("session"),
	}

	// Frames in flight are abandoned when the drone goes away
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.mu.Lock()
	s.drones[drone.ID] = drone
	count := len(s.drones)
	s.mu.Unlock()
	s.logger.Info("drone connected", "drone", drone.ID, "total", count)

	defer func() {
		s.mu.Lock()
		delete(s.drones, drone.ID)
		count := len(s.drones)
		s.mu.Unlock()
		s.logger.Info("drone disconnected", "drone", drone.ID, "session", drone.SessionID(), "total", count)
	}()

	c.SetReadLimit(MaxFrameBytes)

	// Read loop
	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			s.logger.Debug("drone read ended", "drone", drone.ID, "error", err)
			return
		}

		drone.seen()
		s.messagesReceived.Add(1)

		if mt == websocket.BinaryMessage {
			s.handleBinary(ctx, drone, data)
			continue
		}
		s.handleMessage(ctx, drone, data)
	}
}

// handleBinary treats a binary message as a JPEG frame for the connection's
// session.
func (s *Server) handleBinary(ctx context.Context, drone *DroneConnection, jpeg []byte) {
	s.framesReceived.Add(1)

	sessionID := drone.SessionID()
	if sessionID == "" {
		s.sendError(drone, "unknown_session", "no session open on this connection")
		return
	}

	frameID := drone.nextFrame()
	fix, err := s.manager.Update(ctx, sessionID, jpeg, time.Time{})
	s.reply(drone, sessionID, frameID, fix, err)
}

// handleMessage processes an incoming JSON message from a drone
func (s *Server) handleMessage(ctx context.Context, drone *DroneConnection, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.sendError(drone, "bad_request", err.Error())
		return
	}

	switch msg.Type {
	case protocol.TypeOpen:
		open, err := msg.GetOpenData()
		if err != nil {
			s.sendError(drone, "bad_request", err.Error())
			return
		}
		info, err := s.open(ctx, open)
		if err != nil {
			s.sendError(drone, errorCode(err), err.Error())
			return
		}
		drone.follow(info.ID)
		reply, err := protocol.NewSessionMessage(sessionData(info))
		s.send(drone, reply, err)

	case protocol.TypeFrame:
		s.framesReceived.Add(1)
		frame, err := msg.GetFrameData()
		if err != nil {
			s.sendError(drone, "bad_request", err.Error())
			return
		}
		sessionID := frame.SessionID
		if sessionID == "" {
			sessionID = drone.SessionID()
		}
		if sessionID == "" {
			s.sendError(drone, "unknown_session", "no session open on this connection")
			return
		}
		frameID := frame.FrameID
		if frameID == 0 {
			frameID = drone.nextFrame()
		}
		fix, err := s.update(ctx, sessionID, frame)
		s.reply(drone, sessionID, frameID, fix, err)

	case protocol.TypeClose:
		closeData, err := msg.GetCloseData()
		if err != nil {
			s.sendError(drone, "bad_request", err.Error())
			return
		}
		sessionID := closeData.SessionID
		if sessionID == "" {
			sessionID = drone.SessionID()
		}
		if err := s.manager.Close(sessionID); err != nil {
			s.sendError(drone, errorCode(err), err.Error())
			return
		}
		drone.unfollow(sessionID)
		reply, err := protocol.NewSessionMessage(protocol.SessionData{SessionID: sessionID, Closed: true})
		s.send(drone, reply, err)

	case protocol.TypePing:
		ping, _ := msg.GetPingData()
		id := ""
		if ping != nil {
			id = ping.ID
		}
		reply, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		s.send(drone, reply, err)

	default:
		s.sendError(drone, "bad_request", "unknown message type "+string(msg.Type))
	}
}

func (s *Server) reply(drone *DroneConnection, sessionID string, frameID uint64, fix tracking.Fix, err error) {
	if err != nil && !tracking.IsFrameFailure(err) {
		s.logger.Warn("frame rejected", "drone", drone.ID, "session", sessionID, "error", err)
	}
	msg, err := resultMessage(sessionID, frameID, fix, err)
	s.send(drone, msg, err)
}

func (s *Server) sendError(drone *DroneConnection, code, message string) {
	msg, err := protocol.NewErrorMessage(code, message)
	s.send(drone, msg, err)
}

func (s *Server) send(drone *DroneConnection, msg *protocol.Message, err error) {
	if err != nil {
		s.logger.Error("encode message", "drone", drone.ID, "error", err)
		return
	}
	s.messagesSent.Add(1)
	if err := drone.Send(msg); err != nil {
		s.logger.Debug("send failed", "drone", drone.ID, "error", err)
	}
}

// DroneCount returns the number of connected drones
func (s *Server) DroneCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drones)
}

// GetDroneInfos returns info about all connected drones
func (s *Server) GetDroneInfos() []DroneInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]DroneInfo, 0, len(s.drones))
	for _, d := range s.drones {
		d.mu.Lock()
		infos = append(infos, DroneInfo{
			ID:        d.ID,
			SessionID: d.sessionID,
			Connected: d.Connected,
			LastSeen:  d.lastSeen,
		})
		d.mu.Unlock()
	}
	return infos
}

// StreamStats returns stream statistics
func (s *Server) StreamStats() StreamStats {
	return StreamStats{
		DroneCount:       s.DroneCount(),
		MessagesReceived: s.messagesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		FramesReceived:   s.framesReceived.Load(),
	}
}
