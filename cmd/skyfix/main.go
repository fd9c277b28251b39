// skyfix: drone position service
// Accepts drone frame streams, detects the reference object and answers with
// position fixes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-skyfix/internal/config"
	"github.com/teslashibe/go-skyfix/internal/log"
	"github.com/teslashibe/go-skyfix/pkg/camera"
	"github.com/teslashibe/go-skyfix/pkg/cloud"
	"github.com/teslashibe/go-skyfix/pkg/hub"
	"github.com/teslashibe/go-skyfix/pkg/tracking"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
	"github.com/teslashibe/go-skyfix/pkg/vision"
)

var (
	version = "0.1.0"
	port    = flag.String("port", "", "HTTP server port (overrides SKYFIX_PORT)")
	debug   = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Port = *port
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	log.Init(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.Error("skyfix stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server) error {
	log.Info("starting skyfix",
		"version", version,
		"detector", cfg.Detector,
		"strategy", cfg.Strategy,
		"prompt", cfg.Prompt,
		"focal_mm", cfg.FocalMm,
		"sensor_mm", cfg.SensorMm,
		"detect_timeout", cfg.DetectTimeout,
		"idle_timeout", cfg.IdleTimeout,
	)

	det, closer, err := newDetector(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	cams := camera.NewManagerWith(camera.Config{
		FocalLengthMm: cfg.FocalMm,
		SensorWidthMm: cfg.SensorMm,
		Width:         camera.DefaultConfig().Width,
		Height:        camera.DefaultConfig().Height,
	})

	manager, err := tracking.NewManager(det, cams, nil,
		tracking.WithStrategy(tracking.Strategy(cfg.Strategy)),
		tracking.WithPrompt(cfg.Prompt),
		tracking.WithPlanarFocal(cfg.PlanarFocal),
		tracking.WithDetectTimeout(cfg.DetectTimeout),
		tracking.WithIdleTimeout(cfg.IdleTimeout),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fixes := hub.New("fixes")
	go fixes.Run(ctx)
	go manager.Run(ctx)

	server := cloud.NewServer(manager, fixes)

	// Middleware
	middleware := []fiber.Handler{
		recover.New(),
		cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowHeaders: "Content-Type,Authorization",
		}),
	}
	if *debug {
		middleware = append(middleware, logger.New())
	}
	app := cloud.NewApp(server, middleware...)

	// Metrics endpoint
	app.Get("/metrics", func(c *fiber.Ctx) error {
		ts := manager.Stats()
		ss := server.StreamStats()
		return c.SendString(fmt.Sprintf(`# HELP skyfix_sessions Live sessions
# TYPE skyfix_sessions gauge
skyfix_sessions %d

# HELP skyfix_drones Connected drone streams
# TYPE skyfix_drones gauge
skyfix_drones %d

# HELP skyfix_observers Connected fix observers
# TYPE skyfix_observers gauge
skyfix_observers %d

# HELP skyfix_updates_total Frames processed
# TYPE skyfix_updates_total counter
skyfix_updates_total %d

# HELP skyfix_fixes_total Fixes produced
# TYPE skyfix_fixes_total counter
skyfix_fixes_total %d

# HELP skyfix_failures_total Frames without a fix
# TYPE skyfix_failures_total counter
skyfix_failures_total %d

# HELP skyfix_detector_timeouts_total Detector calls that timed out
# TYPE skyfix_detector_timeouts_total counter
skyfix_detector_timeouts_total %d
`, ts.Live, ss.DroneCount, fixes.ClientCount(), ts.Updates, ts.Fixes, ts.Failures, ts.Timeouts))
	})

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("listening",
			"addr", addr,
			"stream", "ws://localhost:"+cfg.Port+"/ws/stream",
			"fixes", "ws://localhost:"+cfg.Port+"/ws/fixes",
			"api", "http://localhost:"+cfg.Port+"/api/sessions",
		)
		errc <- app.Listen(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newDetector builds the configured detector backend.
func newDetector(cfg config.Server) (detection.Detector, io.Closer, error) {
	switch cfg.Detector {
	case "remote":
		d, err := newRemote(cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, nopCloser{}, nil
	case "chain":
		y, err := newYOLO(cfg)
		if err != nil {
			return nil, nil, err
		}
		r, err := newRemote(cfg)
		if err != nil {
			y.Close()
			return nil, nil, err
		}
		chain, err := detection.NewChain(y, r)
		if err != nil {
			y.Close()
			return nil, nil, err
		}
		return chain.WithLogger(log.For("detection")), y, nil
	default:
		d, err := newYOLO(cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	}
}

func newYOLO(cfg config.Server) (*vision.YOLODetector, error) {
	yc := vision.DefaultYOLOConfig()
	yc.ModelPath = cfg.ModelPath
	d, err := vision.NewYOLO(yc)
	if err != nil {
		return nil, fmt.Errorf("yolo: %w", err)
	}
	log.Info("using yolo detector", "model", cfg.ModelPath)
	return d, nil
}

func newRemote(cfg config.Server) (*vision.RemoteDetector, error) {
	d, err := vision.NewRemote(vision.DefaultRemoteConfig(cfg.DetectorURL))
	if err != nil {
		return nil, err
	}
	log.Info("using remote detector", "url", cfg.DetectorURL)
	return d, nil
}
