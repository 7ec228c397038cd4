package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "reef.jpg", want: "reef.jpg"},
		{in: "../../etc/passwd", want: "passwd"},
		{in: `C:\photos\coral.png`, want: "coral.png"},
		{in: "a:b?.jpg", want: "a_b_.jpg"},
		{in: "..", wantErr: true},
		{in: "", wantErr: true},
		{in: "dir/", wantErr: false, want: "dir"},
	}
	for _, tt := range tests {
		got, err := CleanName(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidName, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLocalStoreSave(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static", "uploads")
	store, err := NewLocalStore(dir, "/static/uploads")
	require.NoError(t, err)

	url, err := store.Save(context.Background(), "20250101_120000_my reef.jpg", strings.NewReader("jpegdata"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "/static/uploads/20250101_120000_my%20reef.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "20250101_120000_my reef.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(filepath.Join(dir, "uploads"), "/static/uploads/")
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../escape.jpg", strings.NewReader("x"), "")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "uploads", "escape.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "escape.jpg"))
}

func TestLocalStoreCanceledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/u/")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, "a.jpg", strings.NewReader("x"), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3StoreSave(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody string
		gotType string
	)
	fake := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotBody, gotType = r.URL.Path, string(body), r.Header.Get("Content-Type")
		mu.Unlock()
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer fake.Close()

	store, err := NewS3Store(S3Config{
		Region:          "us-east-1",
		Bucket:          "reef-bucket",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		Prefix:          "uploads",
		Endpoint:        fake.URL,
	})
	require.NoError(t, err)

	location, err := store.Save(context.Background(), "coral.jpg", strings.NewReader("pixels"), "image/jpeg")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(gotPath, "/reef-bucket/uploads/"), gotPath)
	assert.True(t, strings.HasSuffix(gotPath, "-coral.jpg"), gotPath)
	assert.Equal(t, "pixels", gotBody)
	assert.Equal(t, "image/jpeg", gotType)
	assert.True(t, strings.HasPrefix(location, fake.URL+"/reef-bucket/uploads/"), location)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Config{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
