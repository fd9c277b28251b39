package cloud

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-skyfix/pkg/geodesy"
	"github.com/teslashibe/go-skyfix/pkg/hub"
	"github.com/teslashibe/go-skyfix/pkg/protocol"
	"github.com/teslashibe/go-skyfix/pkg/tracking"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

var (
	phoneBox   = detection.Box([4]float64{644.24, 569.27, 767.01, 1077.30})
	phoneMoved = detection.Box([4]float64{654.24, 569.27, 777.01, 1077.30})
)

func phone(b detection.BoundingBox) detection.Detected {
	return detection.Detected{Label: "cell phone", Score: 0.9, Box: b}
}

func newTestServer(t *testing.T, det detection.Detector, opts ...tracking.Option) (*Server, *fiber.App, *hub.Hub) {
	t.Helper()
	m, err := tracking.NewManager(det, nil, nil, opts...)
	require.NoError(t, err)
	fixes := hub.New("test")
	s := NewServer(m, fixes)
	return s, NewApp(s), fixes
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func openPlanar(t *testing.T, app *fiber.App, frame *protocol.FrameData) tracking.SessionInfo {
	t.Helper()
	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions", protocol.OpenData{
		Start:         protocol.Location{Kind: protocol.KindCartesian, Z: 330},
		ObjectWidthCm: 20,
		Frame:         frame,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var info tracking.SessionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	return info
}

func TestAPI_Health(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock())
	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")
}

func TestAPI_MiddlewareWrapsRoutes(t *testing.T) {
	m, err := tracking.NewManager(detection.NewMock(), nil, nil)
	require.NoError(t, err)

	tag := func(c *fiber.Ctx) error {
		c.Set("X-Skyfix", "1")
		return c.Next()
	}
	app := NewApp(NewServer(m, nil), recover.New(), tag)
	app.Get("/boom", func(*fiber.Ctx) error { panic("boom") })

	for _, path := range []string{"/health", "/api/stats", "/api/sessions"} {
		resp, _ := doJSON(t, app, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "1", resp.Header.Get("X-Skyfix"), path)
	}

	resp, _ := doJSON(t, app, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestAPI_PlanarFlight(t *testing.T) {
	mock := detection.NewMock(phone(phoneBox), phone(phoneMoved))
	_, app, _ := newTestServer(t, mock)

	info := openPlanar(t, app, &protocol.FrameData{Data: b64("frame-0")})
	assert.True(t, info.Anchored)
	assert.Equal(t, tracking.StrategyPlanar, info.Strategy)

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions/"+info.ID+"/frames",
		protocol.FrameData{Data: b64("frame-1"), FrameID: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	msg, err := protocol.ParseMessage(body)
	require.NoError(t, err)
	require.Equal(t, protocol.TypeFix, msg.Type)
	fix, err := msg.GetFixData()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), fix.FrameID)
	require.NotNil(t, fix.Planar)
	assert.InDelta(t, 16.29, fix.Planar.X, 0.01)
	assert.InDelta(t, 42.36, fix.Planar.DistanceMm, 0.01)
	assert.Equal(t, [4]float64{654.24, 569.27, 777.01, 1077.30}, fix.Detection.Box)
}

func TestAPI_NoFix(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock(detection.NotDetected{}))
	info := openPlanar(t, app, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions/"+info.ID+"/frames",
		protocol.FrameData{Data: b64("dark")})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg, err := protocol.ParseMessage(body)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeNoFix, msg.Type)
	noFix, _ := msg.GetNoFixData()
	assert.Equal(t, "no_detection", noFix.Reason)
	assert.Equal(t, info.ID, noFix.SessionID)
}

func TestAPI_DetectorTimeout(t *testing.T) {
	mock := &detection.Mock{
		DetectFunc: func(ctx context.Context, image []byte, prompt string) (detection.Detection, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	_, app, _ := newTestServer(t, mock, tracking.WithDetectTimeout(20*time.Millisecond))
	info := openPlanar(t, app, nil)

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions/"+info.ID+"/frames",
		protocol.FrameData{Data: b64("frame")})
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	msg, err := protocol.ParseMessage(body)
	require.NoError(t, err)
	noFix, _ := msg.GetNoFixData()
	assert.Equal(t, "detector_timeout", noFix.Reason)
}

func TestAPI_OnBoardDetection(t *testing.T) {
	mock := detection.NewMock()
	_, app, _ := newTestServer(t, mock)

	info := openPlanar(t, app, &protocol.FrameData{
		Detection: &protocol.DetectionData{Box: [4]float64{644.24, 569.27, 767.01, 1077.30}},
	})
	assert.True(t, info.Anchored)

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions/"+info.ID+"/frames", protocol.FrameData{
		Detection: &protocol.DetectionData{Box: [4]float64{654.24, 569.27, 777.01, 1077.30}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	msg, _ := protocol.ParseMessage(body)
	fix, _ := msg.GetFixData()
	assert.InDelta(t, 16.29, fix.Planar.X, 0.01)
	assert.Equal(t, 0, mock.Calls())
}

func TestAPI_ErrorMapping(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock())
	info := openPlanar(t, app, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{
			name:   "unknown session frame",
			method: http.MethodPost,
			path:   "/api/sessions/missing/frames",
			body:   protocol.FrameData{Data: b64("x")},
			status: http.StatusNotFound,
			code:   "unknown_session",
		},
		{
			name:   "unknown session get",
			method: http.MethodGet,
			path:   "/api/sessions/missing",
			status: http.StatusNotFound,
			code:   "unknown_session",
		},
		{
			name:   "zero object width",
			method: http.MethodPost,
			path:   "/api/sessions",
			body:   protocol.OpenData{Start: protocol.Location{Kind: protocol.KindCartesian}},
			status: http.StatusBadRequest,
			code:   "invalid_config",
		},
		{
			name:   "unknown location kind",
			method: http.MethodPost,
			path:   "/api/sessions",
			body:   protocol.OpenData{Start: protocol.Location{Kind: "polar"}, ObjectWidthCm: 20},
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "pose with cartesian start",
			method: http.MethodPost,
			path:   "/api/sessions",
			body: protocol.OpenData{
				Start:         protocol.Location{Kind: protocol.KindCartesian},
				ObjectWidthCm: 20,
				Strategy:      "pose",
			},
			status: http.StatusBadRequest,
			code:   "invalid_config",
		},
		{
			name:   "frame without data",
			method: http.MethodPost,
			path:   "/api/sessions/" + info.ID + "/frames",
			body:   protocol.FrameData{},
			status: http.StatusBadRequest,
			code:   "bad_request",
		},
		{
			name:   "inverted on-board box",
			method: http.MethodPost,
			path:   "/api/sessions/" + info.ID + "/frames",
			body:   protocol.FrameData{Detection: &protocol.DetectionData{Box: [4]float64{10, 10, 5, 5}}},
			status: http.StatusBadRequest,
			code:   "invalid_config",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, app, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode, string(body))

			var out struct {
				Code string `json:"code"`
			}
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, tc.code, out.Code)
		})
	}
}

func TestAPI_GeodeticFromECEF(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock())

	resp, body := doJSON(t, app, http.MethodPost, "/api/sessions", protocol.OpenData{
		Start:         protocol.Location{Kind: protocol.KindECEF, X: 6378137},
		ObjectWidthCm: 20,
		Strategy:      "pose",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var info tracking.SessionInfo
	require.NoError(t, json.Unmarshal(body, &info))
	assert.Equal(t, tracking.Geodetic, info.Reference.Start.Kind)
	assert.InDelta(t, 0.0, info.Reference.Start.Lat, 1e-9)
	assert.InDelta(t, 0.0, info.Reference.Start.Lon, 1e-9)
}

func TestFixData_Geo(t *testing.T) {
	pos := geodesy.LLA{Lat: 10, Lon: 20, Alt: 30}
	ecef := geodesy.LLAToECEF(pos)
	fix := tracking.Fix{
		SessionID: "s",
		Strategy:  tracking.StrategyPose,
		Timestamp: time.UnixMilli(1500),
		Geo:       &tracking.GeoFix{Lat: pos.Lat, Lon: pos.Lon, AltitudeM: 1, ECEF: ecef},
		Detection: phone(phoneBox),
	}

	out := fixData(fix, 7)
	assert.Equal(t, uint64(7), out.FrameID)
	assert.Equal(t, int64(1500), out.Timestamp)
	assert.Nil(t, out.Planar)
	require.NotNil(t, out.Geo)
	assert.Equal(t, [3]float64{ecef.X, ecef.Y, ecef.Z}, out.Geo.ECEF)
	assert.Equal(t, [4]float64{644.24, 569.27, 767.01, 1077.30}, out.Detection.Box)
}

func TestAPI_SessionLifecycle(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock())
	a := openPlanar(t, app, nil)
	openPlanar(t, app, nil)

	resp, body := doJSON(t, app, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Sessions []tracking.SessionInfo `json:"sessions"`
		Count    int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Equal(t, 2, list.Count)

	resp, _ = doJSON(t, app, http.MethodGet, "/api/sessions/"+a.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/sessions/"+a.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/api/sessions/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats struct {
		Tracking tracking.Stats `json:"tracking"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, 1, stats.Tracking.Live)
	assert.Equal(t, uint64(2), stats.Tracking.Opened)
	assert.Equal(t, uint64(1), stats.Tracking.Closed)
}

func TestAPI_Camera(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock())

	resp, body := doJSON(t, app, http.MethodGet, "/api/camera", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"focal_length_mm":26`)

	resp, body = doJSON(t, app, http.MethodPut, "/api/camera", map[string]any{"preset": "drone-1080p"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.Contains(t, string(body), `"focal_length_mm":5`)

	resp, _ = doJSON(t, app, http.MethodPut, "/api/camera", map[string]any{"width": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodPut, "/api/camera", map[string]any{"preset": "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/api/camera/presets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "drone-4k")
}

func TestAPI_EstimateFocal(t *testing.T) {
	_, app, _ := newTestServer(t, detection.NewMock())

	resp, body := doJSON(t, app, http.MethodPost, "/api/camera/focal",
		FocalRequest{PixelWidth: 122.77, RealWidth: 200, Distance: 200 * 26 / 122.77})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Focal float64 `json:"focal_length"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.InDelta(t, 26.0, out.Focal, 1e-9)

	resp, _ = doJSON(t, app, http.MethodPost, "/api/camera/focal",
		FocalRequest{PixelWidth: 0, RealWidth: 200, Distance: 100})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
