package webmonitor

import (
	"net/http"
	"os"
	"path/filepath"
)

// assetHandler serves files from assetsDir by base name, falling back to the
// built-in stylesheet when the directory has no such file.
type assetHandler struct {
	assetsDir string
}

func newAssetHandler(assetsDir string) *assetHandler {
	return &assetHandler{assetsDir: assetsDir}
}

func (h *assetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.URL.Path)
	if h.assetsDir != "" {
		assetPath := filepath.Join(h.assetsDir, filename)
		if fileExists(assetPath) {
			http.ServeFile(w, r, assetPath)
			return
		}
	}

	if filename == "monitor.css" {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		_, _ = w.Write([]byte(monitorCSS))
		return
	}
	http.NotFound(w, r)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
