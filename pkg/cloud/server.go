// Package cloud serves the skyfix HTTP and WebSocket surface: drones stream
// frames over /ws/stream, observers follow fixes on /ws/fixes and the REST
// API under /api manages sessions and the camera model.
package cloud

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-skyfix/internal/log"
	"github.com/teslashibe/go-skyfix/pkg/hub"
	"github.com/teslashibe/go-skyfix/pkg/protocol"
	"github.com/teslashibe/go-skyfix/pkg/tracking"
)

// MaxFrameBytes bounds request bodies and websocket frames.
const MaxFrameBytes = 16 * 1024 * 1024

// errBadRequest marks malformed requests that never reached the tracker.
var errBadRequest = errors.New("cloud: bad request")

// Server wires the session manager to the transports.
type Server struct {
	manager *tracking.Manager
	fixes   *hub.Hub
	logger  *slog.Logger

	mu     sync.RWMutex
	drones map[string]*DroneConnection

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
}

// NewServer creates a server for manager. When fixes is non-nil every fix
// the manager produces is broadcast to its observers.
func NewServer(manager *tracking.Manager, fixes *hub.Hub) *Server {
	s := &Server{
		manager: manager,
		fixes:   fixes,
		logger:  log.For("cloud"),
		drones:  make(map[string]*DroneConnection),
	}
	if fixes != nil {
		manager.OnFix(s.broadcastFix)
	}
	return s
}

// Manager returns the session manager.
func (s *Server) Manager() *tracking.Manager {
	return s.manager
}

func (s *Server) broadcastFix(fix tracking.Fix) {
	msg, err := protocol.NewFixMessage(fixData(fix, 0))
	if err != nil {
		s.logger.Error("encode fix", "session", fix.SessionID, "error", err)
		return
	}
	if err := s.fixes.BroadcastMessage(fix.SessionID, msg); err != nil {
		s.logger.Error("broadcast fix", "session", fix.SessionID, "error", err)
	}
}

// NewApp returns a fiber app with every route registered behind the given
// middleware.
func NewApp(s *Server, middleware ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "skyfix",
		DisableStartupMessage: true,
		BodyLimit:             MaxFrameBytes,
	})
	for _, m := range middleware {
		app.Use(m)
	}
	s.RegisterRoutes(app)
	s.RegisterAPIRoutes(app.Group("/api"))
	return app
}

// RegisterRoutes registers the health check and WebSocket routes on a Fiber app
func (s *Server) RegisterRoutes(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/stream", websocket.New(s.handleStream, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 16 * 1024,
	}))
	if s.fixes != nil {
		app.Get("/ws/fixes", s.fixes.Handler())
	}
}

// errorCode is the machine-readable code sent for err.
func errorCode(err error) string {
	if errors.Is(err, errBadRequest) {
		return "bad_request"
	}
	return tracking.Reason(err)
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, tracking.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, tracking.ErrUnknownSession):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, tracking.ErrDetectorTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, tracking.ErrDetectorFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// resultMessage turns the outcome of one frame into the reply sent back:
// a fix, a no_fix for frame-level failures, or an error.
func resultMessage(sessionID string, frameID uint64, fix tracking.Fix, err error) (*protocol.Message, error) {
	switch {
	case err == nil:
		return protocol.NewFixMessage(fixData(fix, frameID))
	case tracking.IsFrameFailure(err):
		return protocol.NewNoFixMessage(sessionID, frameID, tracking.Reason(err), err.Error())
	default:
		return protocol.NewErrorMessage(errorCode(err), err.Error())
	}
}
