package cloud

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-skyfix/pkg/camera"
	"github.com/teslashibe/go-skyfix/pkg/protocol"
	"github.com/teslashibe/go-skyfix/pkg/tracking"
)

// FocalRequest asks for a focal length from a calibration shot.
type FocalRequest struct {
	PixelWidth float64 `json:"pixel_width"`
	RealWidth  float64 `json:"real_width"`
	Distance   float64 `json:"distance"`
}

// RegisterAPIRoutes registers the session and camera API
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/stats", s.getStats)
	api.Get("/drones", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"drones": s.GetDroneInfos(),
			"count":  s.DroneCount(),
		})
	})

	api.Post("/sessions", s.openSession)
	api.Get("/sessions", s.listSessions)
	api.Get("/sessions/:id", s.getSession)
	api.Delete("/sessions/:id", s.closeSession)
	api.Post("/sessions/:id/frames", s.postFrame)

	api.Get("/camera", s.getCamera)
	api.Put("/camera", s.putCamera)
	api.Get("/camera/presets", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"presets": camera.PresetNames()})
	})
	api.Post("/camera/focal", s.estimateFocal)
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(statusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  errorCode(err),
	})
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"code":  "bad_request",
	})
}

func (s *Server) getStats(c *fiber.Ctx) error {
	out := fiber.Map{
		"tracking": s.manager.Stats(),
		"stream":   s.StreamStats(),
	}
	if s.fixes != nil {
		out["observers"] = s.fixes.Stats()
	}
	return c.JSON(out)
}

func (s *Server) openSession(c *fiber.Ctx) error {
	var open protocol.OpenData
	if err := c.BodyParser(&open); err != nil {
		return badRequest(c, err)
	}

	info, err := s.open(c.UserContext(), &open)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(http.StatusCreated).JSON(info)
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	sessions := s.manager.List()
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) getSession(c *fiber.Ctx) error {
	info, err := s.manager.Get(c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(info)
}

func (s *Server) closeSession(c *fiber.Ctx) error {
	if err := s.manager.Close(c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(http.StatusNoContent)
}

// postFrame answers with the same envelope the stream uses: a fix, or a
// no_fix for frames that yielded nothing. A detector timeout is a no_fix
// with status 504.
func (s *Server) postFrame(c *fiber.Ctx) error {
	var frame protocol.FrameData
	if err := c.BodyParser(&frame); err != nil {
		return badRequest(c, err)
	}
	sessionID := c.Params("id")

	fix, err := s.update(c.UserContext(), sessionID, &frame)
	if err != nil && !tracking.IsFrameFailure(err) {
		return errorResponse(c, err)
	}

	msg, encErr := resultMessage(sessionID, frame.FrameID, fix, err)
	if encErr != nil {
		return errorResponse(c, encErr)
	}

	status := http.StatusOK
	if errors.Is(err, tracking.ErrDetectorTimeout) {
		status = http.StatusGatewayTimeout
	}
	return c.Status(status).JSON(msg)
}

func (s *Server) getCamera(c *fiber.Ctx) error {
	return c.JSON(s.cameraState())
}

// putCamera updates the camera model. Sessions already open keep the
// intrinsics they were opened with.
func (s *Server) putCamera(c *fiber.Ctx) error {
	var params map[string]interface{}
	if err := c.BodyParser(&params); err != nil {
		return badRequest(c, err)
	}
	if err := s.manager.Camera().UpdateConfig(params); err != nil {
		return badRequest(c, err)
	}
	s.logger.Info("camera updated", "config", s.manager.Camera().GetConfig())
	return c.JSON(s.cameraState())
}

func (s *Server) cameraState() fiber.Map {
	out := fiber.Map{"config": s.manager.Camera().GetConfigJSON()}
	if k, err := s.manager.Camera().Intrinsics(); err == nil {
		out["intrinsics"] = k
	}
	return out
}

func (s *Server) estimateFocal(c *fiber.Ctx) error {
	var req FocalRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, err)
	}
	focal, err := camera.EstimateFocalLength(req.PixelWidth, req.RealWidth, req.Distance)
	if err != nil {
		return badRequest(c, err)
	}
	return c.JSON(fiber.Map{"focal_length": focal})
}
