// Package vision provides the concrete detector backends (a local YOLO
// model and a remote zero-shot service) and frame sampling for replaying
// recorded flights.
package vision

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-skyfix/internal/log"
	"github.com/teslashibe/go-skyfix/pkg/tracking/detection"
)

// YOLODetector finds the reference object with a YOLOv8 ONNX model.
// The prompt names the object ("phone.") and is mapped onto COCO classes.
type YOLODetector struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
	logger    *slog.Logger
}

// YOLOConfig holds YOLO detector configuration
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
}

// DefaultYOLOConfig returns production defaults for YOLOv8n
func DefaultYOLOConfig() YOLOConfig {
	return YOLOConfig{
		ModelPath:        "models/yolov8n.onnx",
		ConfidenceThresh: 0.25,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
	}
}

// NewYOLO creates a new YOLO object detector
func NewYOLO(cfg YOLOConfig) (*YOLODetector, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load YOLO model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLODetector{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
		logger:    log.For("yolo"),
	}, nil
}

// Detect implements detection.Detector. The network call is not
// interruptible; ctx is only checked before inference starts.
func (d *YOLODetector) Detect(ctx context.Context, jpeg []byte, prompt string) (detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all, err := d.detectAll(jpeg)
	if err != nil {
		return nil, err
	}

	labels := PromptLabels(prompt)
	best := detection.SelectBest(detection.Filter(all, float64(d.config.ConfidenceThresh), func(l string) bool {
		return len(labels) == 0 || labels[l]
	}))

	if det, ok := best.(detection.Detected); ok {
		d.logger.Debug("object found", "label", det.Label, "score", det.Score, "candidates", len(all))
	}
	return best, nil
}

func (d *YOLODetector) detectAll(jpeg []byte) ([]detection.Detected, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	blob := gocv.BlobFromImage(img, 1.0/255.0, d.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	return d.parseYOLOv8Output(output, float32(img.Cols()), float32(img.Rows())), nil
}

// parseYOLOv8Output parses the [1, 84, 8400] output tensor: 4 box values
// (cx, cy, w, h) then 80 class scores per anchor.
func (d *YOLODetector) parseYOLOv8Output(output gocv.Mat, imgW, imgH float32) []detection.Detected {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	sizes := output.Size()
	if len(sizes) != 3 {
		return nil
	}
	cols := sizes[1] // 84
	rows := sizes[2] // 8400

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	sx := imgW / float32(d.config.InputWidth)
	sy := imgH / float32(d.config.InputHeight)

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0

		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < d.config.ConfidenceThresh {
			continue
		}

		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * sx)
		y1 := int((cy - h/2) * sy)
		x2 := int((cx + w/2) * sx)
		y2 := int((cy + h/2) * sy)

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, d.config.ConfidenceThresh, d.config.NMSThresh)

	out := make([]detection.Detected, 0, len(indices))
	for _, idx := range indices {
		box := boxes[idx]
		out = append(out, detection.Detected{
			Label: COCOClasses[classIDs[idx]],
			Score: float64(confidences[idx]),
			Box: detection.BoundingBox{
				X1: float64(box.Min.X),
				Y1: float64(box.Min.Y),
				X2: float64(box.Max.X),
				Y2: float64(box.Max.Y),
			},
		})
	}
	return out
}

// Close releases the detector resources
func (d *YOLODetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.net.Close()
	return nil
}

// labelAliases maps prompt phrases onto COCO class names.
var labelAliases = map[string]string{
	"phone":        "cell phone",
	"mobile phone": "cell phone",
	"smartphone":   "cell phone",
	"cellphone":    "cell phone",
	"television":   "tv",
	"monitor":      "tv",
	"notebook":     "laptop",
	"ball":         "sports ball",
	"bike":         "bicycle",
}

// PromptLabels turns a detection prompt into the set of COCO labels it
// names. Prompts list phrases separated by periods ("phone. laptop.").
func PromptLabels(prompt string) map[string]bool {
	labels := make(map[string]bool)
	for _, phrase := range strings.Split(prompt, ".") {
		phrase = strings.ToLower(strings.TrimSpace(phrase))
		if phrase == "" {
			continue
		}
		if alias, ok := labelAliases[phrase]; ok {
			phrase = alias
		}
		labels[phrase] = true
	}
	return labels
}

// COCOClasses contains the 80 COCO class names
var COCOClasses = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat",
	"dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack",
	"umbrella", "handbag", "tie", "suitcase", "frisbee", "skis", "snowboard", "sports ball",
	"kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket",
	"bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator",
	"book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}
