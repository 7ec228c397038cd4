// Package coral classifies uploaded reef photos as bleached or healthy.
package coral

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"
)

// Labels maps model output indices to names.
var Labels = []string{"Bleached", "Healthy"}

// ErrNoScores is returned when the model answers without any class scores.
var ErrNoScores = errors.New("model returned no scores")

// Prediction is one classification result.
type Prediction struct {
	Label      string `json:"prediction"`
	ClassIndex int    `json:"class_index"`
}

// Classifier turns an image into a Prediction.
type Classifier interface {
	Classify(ctx context.Context, img image.Image) (Prediction, error)
}

// Func adapts a function to Classifier.
type Func func(ctx context.Context, img image.Image) (Prediction, error)

// Classify implements Classifier.
func (f Func) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	return f(ctx, img)
}

// LabelFor names a class index. Anything but 0 counts as healthy, matching
// the two-output head the model was trained with.
func LabelFor(index int) string {
	if index == 0 {
		return Labels[0]
	}
	return Labels[1]
}

// PredictionFromScores picks the highest score. Ties go to the lower index.
func PredictionFromScores(scores []float64) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, ErrNoScores
	}
	best := 0
	for i, s := range scores[1:] {
		if s > scores[best] {
			best = i + 1
		}
	}
	return Prediction{Label: LabelFor(best), ClassIndex: best}, nil
}

// RemoteClassifier sends the preprocessed tensor to a TF-Serving style REST
// predict endpoint.
type RemoteClassifier struct {
	url    string
	client *http.Client
}

// NewRemoteClassifier builds a classifier for url.
func NewRemoteClassifier(url string, timeout time.Duration) *RemoteClassifier {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClassifier{url: url, client: &http.Client{Timeout: timeout}}
}

type predictRequest struct {
	Instances []Tensor `json:"instances"`
}

type predictResponse struct {
	Predictions [][]float64 `json:"predictions"`
	Error       string      `json:"error"`
}

// Classify implements Classifier.
func (c *RemoteClassifier) Classify(ctx context.Context, img image.Image) (Prediction, error) {
	body, err := json.Marshal(predictRequest{Instances: []Tensor{Preprocess(img)}})
	if err != nil {
		return Prediction{}, fmt.Errorf("encode tensor: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Prediction{}, fmt.Errorf("model server returned %d", resp.StatusCode)
		}
		return Prediction{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return Prediction{}, fmt.Errorf("model server returned %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Predictions) == 0 {
		return Prediction{}, ErrNoScores
	}
	return PredictionFromScores(out.Predictions[0])
}
