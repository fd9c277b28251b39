package cloud

import (
	"context"
	"fmt"

	"github.com/teslashibe/go-skyfix/pkg/geodesy"
	"github.com/teslashibe/go-skyfix/pkg/protocol"
	"github.com/teslashibe/go-skyfix/pkg/tracking"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

func location(l protocol.Location) (tracking.Location, error) {
	switch l.Kind {
	case protocol.KindCartesian:
		return tracking.CartesianLocation(l.X, l.Y, l.Z), nil
	case protocol.KindGeodetic:
		return tracking.GeodeticLocation(l.Lat, l.Lon, l.Alt), nil
	case protocol.KindECEF:
		return tracking.ECEFLocation(geodesy.ECEF{X: l.X, Y: l.Y, Z: l.Z}), nil
	}
	return tracking.Location{}, fmt.Errorf("%w: unknown location kind %q", errBadRequest, l.Kind)
}

func openRequest(o *protocol.OpenData) (tracking.OpenRequest, error) {
	start, err := location(o.Start)
	if err != nil {
		return tracking.OpenRequest{}, err
	}

	req := tracking.OpenRequest{
		Start:          start,
		ObjectWidthCm:  o.ObjectWidthCm,
		ObjectHeightCm: o.ObjectHeightCm,
		Strategy:       tracking.Strategy(o.Strategy),
		AzimuthDeg:     o.AzimuthDeg,
	}

	if f := o.Frame; f != nil {
		if f.Data != "" {
			jpeg, err := f.DecodeFrameData()
			if err != nil {
				return tracking.OpenRequest{}, fmt.Errorf("%w: frame: %w", errBadRequest, err)
			}
			req.Frame = jpeg
		}
		req.Timestamp = f.CapturedAt()
		req.FrameWidth = f.Width
		req.FrameHeight = f.Height
	}
	return req, nil
}

// open runs an open request. A first frame that carries an on-board
// detection instead of image data is applied once the session exists.
func (s *Server) open(ctx context.Context, o *protocol.OpenData) (tracking.SessionInfo, error) {
	req, err := openRequest(o)
	if err != nil {
		return tracking.SessionInfo{}, err
	}
	info, err := s.manager.Open(ctx, req)
	if err != nil {
		return tracking.SessionInfo{}, err
	}

	if f := o.Frame; f != nil && f.Data == "" && f.Detection != nil {
		if _, err := s.manager.Apply(info.ID, detectionFrom(*f.Detection), f.CapturedAt()); err != nil {
			s.logger.Debug("first detection yielded no fix", "session", info.ID, "reason", tracking.Reason(err))
		}
		return s.manager.Get(info.ID)
	}
	return info, nil
}

// update runs one frame for a session, through the detector or, when the
// drone sent its own detection, straight to the estimator.
func (s *Server) update(ctx context.Context, sessionID string, f *protocol.FrameData) (tracking.Fix, error) {
	if f.Detection != nil {
		return s.manager.Apply(sessionID, detectionFrom(*f.Detection), f.CapturedAt())
	}
	jpeg, err := f.DecodeFrameData()
	if err != nil {
		return tracking.Fix{}, fmt.Errorf("%w: frame: %w", errBadRequest, err)
	}
	return s.manager.Update(ctx, sessionID, jpeg, f.CapturedAt())
}

func detectionFrom(d protocol.DetectionData) detection.Detection {
	return detection.Detected{Label: d.Label, Score: d.Score, Box: detection.Box(d.Box)}
}

func sessionData(info tracking.SessionInfo) protocol.SessionData {
	return protocol.SessionData{
		SessionID: info.ID,
		Strategy:  string(info.Strategy),
		Anchored:  info.Anchored,
	}
}

func fixData(fix tracking.Fix, frameID uint64) protocol.FixData {
	b := fix.Detection.Box
	out := protocol.FixData{
		SessionID: fix.SessionID,
		FrameID:   frameID,
		Strategy:  string(fix.Strategy),
		Timestamp: fix.Timestamp.UnixMilli(),
		Home:      fix.Home,
		Detection: &protocol.DetectionData{
			Label: fix.Detection.Label,
			Score: fix.Detection.Score,
			Box:   [4]float64{b.X1, b.Y1, b.X2, b.Y2},
		},
	}
	if p := fix.Planar; p != nil {
		out.Planar = &protocol.PlanarData{
			X:              p.X,
			Y:              p.Y,
			DistanceMm:     p.DistanceMm,
			DX:             p.DX,
			DY:             p.DY,
			PixelDX:        p.PixelDX,
			PixelDY:        p.PixelDY,
			ObjectHeightMm: p.ObjectHeightMm,
		}
	}
	if g := fix.Geo; g != nil {
		out.Geo = &protocol.GeoData{
			Lat:                g.Lat,
			Lon:                g.Lon,
			AltitudeM:          g.AltitudeM,
			DistanceFromStartM: g.DistanceFromStartM,
			North:              g.North,
			East:               g.East,
			ECEF:               g.ECEF.Array(),
		}
	}
	return out
}
