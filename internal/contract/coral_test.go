package contract

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 230, G: 220, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLiveCoralIndex(t *testing.T) {
	client := newCoralClient(t)
	resp, body := client.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `name="image"`) {
		t.Fatalf("GET / missing upload form")
	}
}

func TestLiveCoralPredictValidation(t *testing.T) {
	client := newCoralClient(t)

	resp, body := client.postFile(t, "/predict", "", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /predict without file status = %d", resp.StatusCode)
	}
	if msg := requireString(t, decodeJSONMap(t, body)["error"], "error"); msg != "No image uploaded!" {
		t.Fatalf("unexpected error: %q", msg)
	}

	resp, body = client.postFile(t, "/predict", "image", "", []byte("x"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /predict empty filename status = %d", resp.StatusCode)
	}
	if msg := requireString(t, decodeJSONMap(t, body)["error"], "error"); msg != "No file selected." {
		t.Fatalf("unexpected error: %q", msg)
	}
}

func TestLiveCoralPredict(t *testing.T) {
	client := newCoralClient(t)
	resp, body := client.postFile(t, "/predict", "image", "reef.png", pngBytes(t))
	if resp.StatusCode == http.StatusInternalServerError {
		t.Skipf("model server unavailable: %s", body)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /predict status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	label := requireString(t, payload["prediction"], "prediction")
	if label != "Bleached" && label != "Healthy" {
		t.Fatalf("prediction = %q", label)
	}
	requireNumber(t, payload["class_index"], "class_index")
}
