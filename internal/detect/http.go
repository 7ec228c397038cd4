package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/dj-oyu/reefwatch/internal/imaging"
	"github.com/dj-oyu/reefwatch/pkg/types"
)

// HTTPConfig configures an HTTPDetector.
type HTTPConfig struct {
	URL           string        `validate:"required,url"`
	Timeout       time.Duration `validate:"gt=0"`
	ClassNames    []string      // resolves class_id when the server omits names
	MinConfidence float64       `validate:"gte=0,lte=1"`
	JPEGQuality   int           `validate:"gte=0,lte=100"`
}

// HTTPDetector posts each frame as a JPEG to a model server and draws the
// returned boxes locally.
type HTTPDetector struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPDetector builds a detector for cfg.URL.
func NewHTTPDetector(cfg HTTPConfig) *HTTPDetector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPDetector{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type wireDetection struct {
	ClassName  string    `json:"class_name"`
	Label      string    `json:"label"`
	ClassID    *int      `json:"class_id"`
	Confidence float64   `json:"confidence"`
	Box        []float64 `json:"box"`
}

type wireResponse struct {
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error"`
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, frame *types.Frame) (types.InferenceResult, error) {
	if frame == nil || frame.Image == nil {
		return types.InferenceResult{}, fmt.Errorf("empty frame")
	}

	jpegData, err := imaging.EncodeJPEG(frame.Image, d.cfg.JPEGQuality)
	if err != nil {
		return types.InferenceResult{}, fmt.Errorf("encode frame: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", fmt.Sprintf("frame_%06d.jpg", frame.FrameNum))
	if err != nil {
		return types.InferenceResult{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return types.InferenceResult{}, fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return types.InferenceResult{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, body)
	if err != nil {
		return types.InferenceResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return types.InferenceResult{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var result wireResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return types.InferenceResult{}, fmt.Errorf("model server returned %d", resp.StatusCode)
		}
		return types.InferenceResult{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if result.Error != "" {
			return types.InferenceResult{}, fmt.Errorf("model server returned %d: %s", resp.StatusCode, result.Error)
		}
		return types.InferenceResult{}, fmt.Errorf("model server returned %d", resp.StatusCode)
	}

	dets := d.convert(result.Detections, frame.Image.Bounds())
	return types.InferenceResult{
		Detections: dets,
		Annotated:  Annotate(frame.Image, dets),
	}, nil
}

func (d *HTTPDetector) convert(in []wireDetection, bounds image.Rectangle) []types.Detection {
	out := make([]types.Detection, 0, len(in))
	for _, w := range in {
		if len(w.Box) != 4 {
			continue
		}
		if w.Confidence < d.cfg.MinConfidence {
			continue
		}
		box, ok := clampBox(w.Box, bounds)
		if !ok {
			continue
		}
		out = append(out, types.Detection{
			ClassName:  d.className(w),
			Confidence: types.RoundConfidence(w.Confidence),
			Box:        box,
		})
	}
	return out
}

func (d *HTTPDetector) className(w wireDetection) string {
	switch {
	case w.ClassName != "":
		return w.ClassName
	case w.Label != "":
		return w.Label
	case w.ClassID != nil:
		id := *w.ClassID
		if id >= 0 && id < len(d.cfg.ClassNames) {
			return d.cfg.ClassNames[id]
		}
		return fmt.Sprintf("class_%d", id)
	default:
		return "unknown"
	}
}

// clampBox rounds to pixels and clips to the frame. Degenerate boxes are dropped.
func clampBox(v []float64, bounds image.Rectangle) (types.Box, bool) {
	r := image.Rect(
		int(math.Round(v[0])), int(math.Round(v[1])),
		int(math.Round(v[2])), int(math.Round(v[3])),
	).Intersect(bounds)
	if r.Empty() {
		return types.Box{}, false
	}
	return types.Box{r.Min.X, r.Min.Y, r.Max.X, r.Max.Y}, true
}
