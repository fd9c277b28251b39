package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-skyfix/internal/httpc"
	"github.com/teslashibe/go-skyfix/internal/log"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// RemoteConfig configures a RemoteDetector.
type RemoteConfig struct {
	URL string

	// Thresholds forwarded to the service and applied again locally.
	BoxThreshold  float64
	TextThreshold float64

	Timeout time.Duration
}

// DefaultRemoteConfig returns thresholds suited to open-vocabulary
// detectors such as Grounding DINO.
func DefaultRemoteConfig(url string) RemoteConfig {
	return RemoteConfig{
		URL:           url,
		BoxThreshold:  0.25,
		TextThreshold: 0.25,
		Timeout:       10 * time.Second,
	}
}

// RemoteDetector sends frames to a zero-shot detection service over HTTP.
//
// Request:  {"image": "<base64 jpeg>", "prompt": "phone.", "box_threshold": .25, "text_threshold": .25}
// Response: {"detections": [{"label": "phone", "score": 0.8, "box": [x1, y1, x2, y2]}]}
//
// A single "detection" object (or null) is accepted in place of the list.
type RemoteDetector struct {
	config RemoteConfig
	client *http.Client
	logger *slog.Logger
}

// NewRemote creates a RemoteDetector.
func NewRemote(cfg RemoteConfig) (*RemoteDetector, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote detector: url required")
	}
	client := httpc.Client
	if cfg.Timeout > 0 {
		client = httpc.NewClient(cfg.Timeout)
	}
	return &RemoteDetector{
		config: cfg,
		client: client,
		logger: log.For("remote-detector"),
	}, nil
}

type remoteRequest struct {
	Image         string  `json:"image"`
	Prompt        string  `json:"prompt"`
	BoxThreshold  float64 `json:"box_threshold"`
	TextThreshold float64 `json:"text_threshold"`
}

type remoteCandidate struct {
	Label string     `json:"label"`
	Score float64    `json:"score"`
	Box   [4]float64 `json:"box"`
}

type remoteResponse struct {
	Detections []remoteCandidate `json:"detections"`
	Detection  *remoteCandidate  `json:"detection"`
	Error      string            `json:"error,omitempty"`
}

// Detect implements detection.Detector.
func (d *RemoteDetector) Detect(ctx context.Context, jpeg []byte, prompt string) (detection.Detection, error) {
	if len(jpeg) == 0 {
		return nil, fmt.Errorf("empty image")
	}

	req := remoteRequest{
		Image:         base64.StdEncoding.EncodeToString(jpeg),
		Prompt:        prompt,
		BoxThreshold:  d.config.BoxThreshold,
		TextThreshold: d.config.TextThreshold,
	}

	var resp remoteResponse
	if err := httpc.PostJSON(ctx, d.client, d.config.URL, req, &resp); err != nil {
		return nil, fmt.Errorf("remote detector: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote detector: %s", resp.Error)
	}

	raw := resp.Detections
	if resp.Detection != nil {
		raw = append(raw, *resp.Detection)
	}

	candidates := make([]detection.Detected, 0, len(raw))
	for _, c := range raw {
		box := detection.Box(c.Box)
		if err := box.Validate(); err != nil {
			d.logger.Warn("dropping candidate", "label", c.Label, "error", err)
			continue
		}
		candidates = append(candidates, detection.Detected{Label: c.Label, Score: c.Score, Box: box})
	}

	return detection.SelectBest(detection.Filter(candidates, d.config.BoxThreshold, nil)), nil
}
