// skyfix-replay: stream a recorded flight to a skyfix server
//
// Samples a video file, opens a session with the first sampled frame and
// sends the rest as frames, printing every fix the server returns. With
// -extract it only writes the sampled frames to a directory.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-skyfix/internal/config"
	"github.com/teslashibe/go-skyfix/internal/log"
	"github.com/teslashibe/go-skyfix/pkg/protocol"
	"github.com/teslashibe/go-skyfix/pkg/vision"
)

var (
	server   = flag.String("server", "localhost:8000", "skyfix server host:port")
	video    = flag.String("video", "", "video file to replay (required)")
	every    = flag.Duration("every", time.Second, "keep one frame per interval of video time")
	skip     = flag.Int("skip", 0, "keep every Nth frame instead (overrides -every)")
	extract  = flag.String("extract", "", "write sampled frames to this directory and exit")
	widthCm  = flag.Float64("width", 20, "reference object width in cm")
	heightCm = flag.Float64("height", 0, "reference object height in cm (0 = from first box)")
	strategy = flag.String("strategy", "planar", "planar or pose")
	azimuth  = flag.Float64("azimuth", 0, "camera heading in degrees (pose)")
	startX   = flag.Float64("x", 0, "start x in mm (planar)")
	startY   = flag.Float64("y", 0, "start y in mm (planar)")
	startZ   = flag.Float64("z", 0, "start z in mm (planar)")
	lat      = flag.Float64("lat", 0, "start latitude (pose)")
	lon      = flag.Float64("lon", 0, "start longitude (pose)")
	alt      = flag.Float64("alt", 0, "start altitude in m (pose)")
	verbose  = flag.Bool("v", false, "debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	log.Init(level)

	if *video == "" {
		fmt.Fprintln(os.Stderr, "usage: skyfix-replay -video flight.mp4 [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := vision.DefaultSamplerConfig()
	cfg.Every = *every
	cfg.FrameSkip = *skip

	sampler, err := vision.OpenSampler(*video, cfg)
	if err != nil {
		log.Error("open video", "error", err)
		os.Exit(1)
	}
	defer sampler.Close()

	log.Info("sampling video", "file", *video, "fps", sampler.FPS(), "interval", sampler.Interval())

	if *extract != "" {
		n, err := sampler.SaveAll(*extract)
		if err != nil {
			log.Error("extract frames", "error", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %d frames to %s\n", n, *extract)
		return
	}

	if err := replay(sampler); err != nil {
		log.Error("replay failed", "error", err)
		os.Exit(1)
	}
}

func startLocation() protocol.Location {
	if *strategy == "pose" {
		return protocol.Location{Kind: protocol.KindGeodetic, Lat: *lat, Lon: *lon, Alt: *alt}
	}
	return protocol.Location{Kind: protocol.KindCartesian, X: *startX, Y: *startY, Z: *startZ}
}

func replay(sampler *vision.Sampler) error {
	url := config.ServerURL(*server)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer ws.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	first, err := sampler.Next()
	if err != nil {
		return fmt.Errorf("first frame: %w", err)
	}
	base := time.Now()

	frame := protocol.NewFrameData("", 0, 0, first.JPEG, uint64(first.Index), base)
	open, err := protocol.NewOpenMessage(protocol.OpenData{
		Start:          startLocation(),
		ObjectWidthCm:  *widthCm,
		ObjectHeightCm: *heightCm,
		Strategy:       *strategy,
		AzimuthDeg:     *azimuth,
		Frame:          &frame,
	})
	if err != nil {
		return err
	}
	reply, err := roundTrip(ws, open)
	if err != nil {
		return err
	}
	session, err := sessionFrom(reply)
	if err != nil {
		return err
	}
	fmt.Printf("session %s (%s) anchored=%v\n", session.SessionID, session.Strategy, session.Anchored)

	fixes, misses := 0, 0
	for {
		select {
		case <-quit:
			fmt.Println("interrupted")
			return closeSession(ws, session.SessionID, fixes, misses)
		default:
		}

		f, err := sampler.Next()
		if errors.Is(err, io.EOF) {
			return closeSession(ws, session.SessionID, fixes, misses)
		}
		if err != nil {
			return err
		}

		data := protocol.NewFrameData(session.SessionID, 0, 0, f.JPEG, uint64(f.Index), base.Add(f.Timestamp))
		msg, err := protocol.NewMessage(protocol.TypeFrame, data)
		if err != nil {
			return err
		}
		reply, err := roundTrip(ws, msg)
		if err != nil {
			return err
		}

		switch reply.Type {
		case protocol.TypeFix:
			fixes++
			fix, _ := reply.GetFixData()
			printFix(f.Timestamp, fix)
		case protocol.TypeNoFix:
			misses++
			nf, _ := reply.GetNoFixData()
			fmt.Printf("%8s  frame %-6d no fix: %s\n", f.Timestamp.Round(time.Millisecond), f.Index, nf.Reason)
		case protocol.TypeError:
			e, _ := reply.GetErrorData()
			return fmt.Errorf("server error %s: %s", e.Code, e.Message)
		}
	}
}

func printFix(at time.Duration, fix *protocol.FixData) {
	ts := at.Round(time.Millisecond)
	switch {
	case fix.Planar != nil:
		p := fix.Planar
		fmt.Printf("%8s  frame %-6d x=%.2f y=%.2f distance=%.2f\n", ts, fix.FrameID, p.X, p.Y, p.DistanceMm)
	case fix.Geo != nil:
		g := fix.Geo
		fmt.Printf("%8s  frame %-6d lat=%.7f lon=%.7f alt=%.3fm from_start=%.2fm\n",
			ts, fix.FrameID, g.Lat, g.Lon, g.AltitudeM, g.DistanceFromStartM)
	}
}

func roundTrip(ws *websocket.Conn, msg *protocol.Message) (*protocol.Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return nil, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	ws.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, resp, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	return protocol.ParseMessage(resp)
}

func sessionFrom(reply *protocol.Message) (*protocol.SessionData, error) {
	if reply.Type == protocol.TypeError {
		e, _ := reply.GetErrorData()
		return nil, fmt.Errorf("open rejected: %s: %s", e.Code, e.Message)
	}
	if reply.Type != protocol.TypeSession {
		return nil, fmt.Errorf("unexpected reply %q to open", reply.Type)
	}
	return reply.GetSessionData()
}

func closeSession(ws *websocket.Conn, sessionID string, fixes, misses int) error {
	msg, err := protocol.NewCloseMessage(sessionID)
	if err != nil {
		return err
	}
	if _, err := roundTrip(ws, msg); err != nil {
		return err
	}
	fmt.Printf("done: %d fixes, %d frames without fix\n", fixes, misses)
	return nil
}
