package coral

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/dj-oyu/reefwatch/internal/httpx"
	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
	"github.com/dj-oyu/reefwatch/internal/storage"
)

const (
	msgNoImage  = "No image uploaded!"
	msgNoFile   = "No file selected."
	msgTooLarge = "File too large."

	uploadField = "image"
	staticRoute = "/static/uploads/"
)

// Server serves the upload page and the prediction API.
type Server struct {
	cfg     Config
	service *Service
	store   storage.Store
	metrics *metrics.Metrics
}

// NewServer returns a server. store receives uploads from the HTML form.
func NewServer(cfg Config, service *Service, store storage.Store, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	return &Server{cfg: cfg, service: service, store: store, metrics: m}
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(httpx.RequestLogger("HTTP"))
	r.Use(httpx.Metrics(s.metrics))
	r.Use(httpx.CORS)

	uploads := r.With()
	if s.cfg.RateLimit > 0 {
		uploads = r.With(httprate.Limit(
			s.cfg.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				httpx.WriteError(w, "Too many requests, slow down.", http.StatusTooManyRequests)
			}),
		))
	}

	r.Get("/", s.handleIndex)
	uploads.Post("/", s.handleIndexUpload)
	uploads.Post("/predict", s.handlePredict)

	if s.cfg.Storage == "local" {
		r.Handle(staticRoute+"*", http.StripPrefix(staticRoute, http.FileServer(http.Dir(s.cfg.UploadDir))))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

type upload struct {
	filename    string
	contentType string
	data        []byte
}

// readUpload pulls the "image" file out of a multipart request. On failure
// it returns the status and the message to show the client.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, int, string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes())
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, msgTooLarge
		}
		return nil, http.StatusBadRequest, msgNoImage
	}

	files := r.MultipartForm.File[uploadField]
	if len(files) == 0 {
		// A file input submitted without a selection arrives as a plain value.
		if _, ok := r.MultipartForm.Value[uploadField]; ok {
			return nil, http.StatusBadRequest, msgNoFile
		}
		return nil, http.StatusBadRequest, msgNoImage
	}
	fh := files[0]
	if fh.Filename == "" {
		return nil, http.StatusBadRequest, msgNoFile
	}

	data, err := readFileHeader(fh)
	if err != nil {
		return nil, http.StatusInternalServerError, err.Error()
	}
	return &upload{
		filename:    fh.Filename,
		contentType: fh.Header.Get("Content-Type"),
		data:        data,
	}, 0, ""
}

func readFileHeader(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// handlePredict is the JSON API.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)

	up, status, msg := s.readUpload(w, r)
	if up == nil {
		httpx.WriteError(w, msg, status)
		return
	}

	p, err := s.service.Predict(r.Context(), up.data)
	if err != nil {
		logger.Warn("Coral", "Predict %q: %v", up.filename, err)
		httpx.WriteError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.WriteJSON(w, p)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

// handleIndexUpload saves the upload, classifies it and renders the page.
func (s *Server) handleIndexUpload(w http.ResponseWriter, r *http.Request) {
	defer cleanupForm(r)

	up, status, msg := s.readUpload(w, r)
	if up == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, msg)
		return
	}

	name := time.Now().Format("20060102_150405_") + up.filename
	imageURL, err := s.store.Save(r.Context(), name, bytes.NewReader(up.data), up.contentType)
	if err != nil {
		logger.Error("Coral", "Save %q: %v", name, err)
		s.renderPage(w, http.StatusInternalServerError, pageData{Error: "Could not save upload: " + err.Error()})
		return
	}

	p, err := s.service.Predict(r.Context(), up.data)
	if err != nil {
		logger.Warn("Coral", "Predict %q: %v", name, err)
		s.renderPage(w, http.StatusInternalServerError, pageData{ImageURL: imageURL, Error: err.Error()})
		return
	}
	s.renderPage(w, http.StatusOK, pageData{Prediction: p.Label, ImageURL: imageURL})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := indexPage.Execute(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	_, cached := s.service.cache.(NopCache)
	httpx.WriteJSON(w, map[string]any{
		"status":  "ok",
		"storage": s.cfg.Storage,
		"cache":   !cached,
	})
}
