package coral

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	// Upload formats accepted by image.Decode.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
)

// Service decodes uploads and classifies them, consulting the cache first.
type Service struct {
	classifier Classifier
	cache      Cache
	metrics    *metrics.Metrics
}

// NewService wires a classifier to a cache. A nil cache disables caching.
func NewService(classifier Classifier, cache Cache, m *metrics.Metrics) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{classifier: classifier, cache: cache, metrics: m}
}

// Predict classifies the encoded image in data.
func (s *Service) Predict(ctx context.Context, data []byte) (Prediction, error) {
	key := CacheKey(data)

	if p, ok, err := s.cache.Get(ctx, key); err != nil {
		logger.Warn("Coral", "Cache lookup failed: %v", err)
	} else if ok {
		s.metrics.CacheHits.Add(1)
		logger.Debug("Coral", "Cache hit %s: %s", key[:12], p.Label)
		return p, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.metrics.ClassifyErrors.Add(1)
		return Prediction{}, fmt.Errorf("cannot identify image file: %w", err)
	}

	start := time.Now()
	p, err := s.classifier.Classify(ctx, img)
	if err != nil {
		s.metrics.ClassifyErrors.Add(1)
		return Prediction{}, err
	}
	elapsed := time.Since(start)
	s.metrics.ObservePrediction(p.Label, elapsed)
	logger.Info("Coral", "%s %dx%d -> %s (%d) in %s", format, img.Bounds().Dx(), img.Bounds().Dy(), p.Label, p.ClassIndex, elapsed.Round(time.Millisecond))

	if err := s.cache.Set(ctx, key, p); err != nil {
		logger.Warn("Coral", "Cache store failed: %v", err)
	}
	return p, nil
}
