package vision

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"
)

// SamplerConfig selects which frames of a video are kept.
type SamplerConfig struct {
	// Every keeps one frame per interval of video time.
	Every time.Duration
	// FrameSkip keeps every Nth frame and overrides Every when set.
	FrameSkip int
	// JPEGQuality for encoded frames (1-100).
	JPEGQuality int
}

// DefaultSamplerConfig samples one frame per second.
func DefaultSamplerConfig() SamplerConfig {
	return SamplerConfig{Every: time.Second, JPEGQuality: 90}
}

// SampledFrame is one kept frame.
type SampledFrame struct {
	Index     int           // position in the source video
	Timestamp time.Duration // video time of the frame
	JPEG      []byte
}

// Sampler reads a video file and yields a subset of its frames as JPEG.
type Sampler struct {
	cap      *gocv.VideoCapture
	frame    gocv.Mat
	fps      float64
	interval int
	quality  int
	next     int
}

// SampleInterval returns how many source frames separate two kept frames.
// It is never less than 1.
func SampleInterval(fps float64, every time.Duration, frameSkip int) int {
	if frameSkip > 0 {
		return frameSkip
	}
	n := int(fps * every.Seconds())
	if n < 1 {
		return 1
	}
	return n
}

// OpenSampler opens a video file for sampling.
func OpenSampler(path string, cfg SamplerConfig) (*Sampler, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}

	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("could not open video %s", path)
	}

	fps := vc.Get(gocv.VideoCaptureFPS)
	quality := cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	return &Sampler{
		cap:      vc,
		frame:    gocv.NewMat(),
		fps:      fps,
		interval: SampleInterval(fps, cfg.Every, cfg.FrameSkip),
		quality:  quality,
	}, nil
}

// FPS returns the source frame rate.
func (s *Sampler) FPS() float64 {
	return s.fps
}

// Interval returns the number of source frames between kept frames.
func (s *Sampler) Interval() int {
	return s.interval
}

// Next returns the next kept frame, or io.EOF when the video ends.
func (s *Sampler) Next() (SampledFrame, error) {
	for {
		if ok := s.cap.Read(&s.frame); !ok || s.frame.Empty() {
			return SampledFrame{}, io.EOF
		}
		index := s.next
		s.next++
		if index%s.interval != 0 {
			continue
		}

		buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, s.frame, []int{int(gocv.IMWriteJpegQuality), s.quality})
		if err != nil {
			return SampledFrame{}, fmt.Errorf("encode frame %d: %w", index, err)
		}
		data := append([]byte(nil), buf.GetBytes()...)
		buf.Close()

		var ts time.Duration
		if s.fps > 0 {
			ts = time.Duration(float64(index) / s.fps * float64(time.Second))
		}
		return SampledFrame{Index: index, Timestamp: ts, JPEG: data}, nil
	}
}

// SaveAll writes every remaining kept frame to dir as frame_0000.jpg,
// frame_0001.jpg, ... and returns how many were written.
func (s *Sampler) SaveAll(dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	n := 0
	for {
		f, err := s.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		name := filepath.Join(dir, fmt.Sprintf("frame_%04d.jpg", n))
		if err := os.WriteFile(name, f.JPEG, 0o644); err != nil {
			return n, err
		}
		n++
	}
}

// Close releases the video and frame buffer.
func (s *Sampler) Close() error {
	s.frame.Close()
	return s.cap.Close()
}
