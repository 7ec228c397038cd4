package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof" // Enable pprof
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dj-oyu/reefwatch/internal/config"
	"github.com/dj-oyu/reefwatch/internal/detect"
	"github.com/dj-oyu/reefwatch/internal/inference"
	"github.com/dj-oyu/reefwatch/internal/logger"
	"github.com/dj-oyu/reefwatch/internal/metrics"
	"github.com/dj-oyu/reefwatch/internal/statecell"
	"github.com/dj-oyu/reefwatch/internal/video"
	"github.com/dj-oyu/reefwatch/internal/webmonitor"
	"github.com/dj-oyu/reefwatch/internal/webrtc"
)

func main() {
	// Missing .env is fine: the environment and defaults still apply.
	_ = config.Load()

	cfg := webmonitor.DefaultConfig()
	loopCfg := inference.DefaultConfig()
	loopCfg.Yield = config.GetEnvDuration("FISH_YIELD", loopCfg.Yield)

	detCfg := detect.HTTPConfig{
		URL:           config.GetEnv("FISH_DETECTOR_URL", "http://localhost:8001/detect"),
		Timeout:       config.GetEnvDuration("FISH_DETECTOR_TIMEOUT", 10*time.Second),
		ClassNames:    config.GetEnvList("FISH_CLASS_NAMES", nil),
		MinConfidence: config.GetEnvFloat("FISH_MIN_CONFIDENCE", 0),
		JPEGQuality:   cfg.JPEGQuality,
	}

	srcOpts := video.Options{
		FFmpegPath: config.GetEnv("FISH_FFMPEG_PATH", "ffmpeg"),
		RealTime:   config.GetEnvBool("FISH_REALTIME", true),
	}

	var (
		videoPath  = config.GetEnv("FISH_VIDEO_PATH", "fish.mp4")
		stun       = strings.Join(config.GetEnvList("FISH_STUN", []string{"stun:stun.l.google.com:19302"}), ",")
		classNames = strings.Join(detCfg.ClassNames, ",")
		pprofAddr  string
		logLevel   string
		logColor   bool
		logFile    string
	)

	flag.StringVar(&cfg.Addr, "http", cfg.Addr, "HTTP server address")
	flag.StringVar(&videoPath, "video", videoPath, "Video file or directory of frames to loop")
	flag.StringVar(&detCfg.URL, "detector", detCfg.URL, "Detector model server URL")
	flag.DurationVar(&detCfg.Timeout, "detector-timeout", detCfg.Timeout, "Detector request timeout")
	flag.StringVar(&classNames, "classes", classNames, "Class names for class_id results (comma-separated)")
	flag.Float64Var(&detCfg.MinConfidence, "min-confidence", detCfg.MinConfidence, "Drop detections below this confidence")
	flag.DurationVar(&loopCfg.Yield, "yield", loopCfg.Yield, "Pause after each inference cycle")
	flag.DurationVar(&cfg.StreamInterval, "stream-interval", cfg.StreamInterval, "Minimum gap between MJPEG parts per client")
	flag.DurationVar(&cfg.WarmupInterval, "warmup-interval", cfg.WarmupInterval, "Resend period while no new frame arrives")
	flag.IntVar(&cfg.JPEGQuality, "jpeg-quality", cfg.JPEGQuality, "JPEG quality for stream parts")
	flag.StringVar(&srcOpts.FFmpegPath, "ffmpeg", srcOpts.FFmpegPath, "ffmpeg binary")
	flag.BoolVar(&srcOpts.RealTime, "realtime", srcOpts.RealTime, "Decode video at its native frame rate")
	flag.StringVar(&cfg.RecordingPath, "record-path", cfg.RecordingPath, "Recording output path")
	flag.StringVar(&cfg.AssetsDir, "assets", cfg.AssetsDir, "Web assets directory")
	flag.IntVar(&cfg.MaxWebRTC, "max-clients", cfg.MaxWebRTC, "Maximum WebRTC clients")
	flag.StringVar(&stun, "stun", stun, "STUN server URLs (comma-separated, empty for none)")
	flag.StringVar(&pprofAddr, "pprof", config.GetEnv("FISH_PPROF_ADDR", ""), "pprof server address (empty disables)")
	flag.StringVar(&logLevel, "log-level", config.GetEnv("LOG_LEVEL", "info"), "Log level (debug, info, warn, error, silent)")
	flag.BoolVar(&logColor, "log-color", config.GetEnvBool("LOG_COLOR", true), "Enable colored log output")
	flag.StringVar(&logFile, "log-file", config.GetEnv("LOG_FILE", ""), "Also write logs to this rotated file")
	flag.Parse()

	// Initialize logger
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger.Init(level, logger.Output(logFile), logColor)

	detCfg.ClassNames = config.SplitList(classNames)
	detCfg.JPEGQuality = cfg.JPEGQuality
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Server config: %v", err)
	}
	if err := config.Validate(detCfg); err != nil {
		log.Fatalf("Detector config: %v", err)
	}

	logger.Info("Main", "fishstream starting...")
	logger.Info("Main", "Log level: %s", level)

	// Opening the source is the only fatal pipeline error.
	source, err := video.Open(videoPath, srcOpts)
	if err != nil {
		log.Fatalf("Failed to open video source %s: %v", videoPath, err)
	}

	m := metrics.New()
	cell := statecell.New()
	loop := inference.New(loopCfg, source, detect.NewHTTPDetector(detCfg), cell, m)
	rtc := webrtc.NewServer(config.SplitList(stun), cfg.MaxWebRTC)

	server, err := webmonitor.NewServer(cfg, cell, m, rtc, loop.Stats)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stream handlers end with ctx, so Shutdown is not held up by open streams.
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger("HTTP", logger.WARN),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Main", "Inference loop: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		server.Run(ctx)
	}()

	if pprofAddr != "" {
		go func() {
			logger.Info("Main", "pprof listening on %s", pprofAddr)
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				logger.Warn("Main", "pprof server error: %v", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Main", "Listening on %s (video: %s, detector: %s)", cfg.Addr, videoPath, detCfg.URL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Main", "Shutting down...")
	case err := <-serveErr:
		logger.Error("Main", "HTTP server error: %v", err)
		exitCode = 1
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Main", "HTTP shutdown: %v", err)
	}

	wg.Wait()
	if err := server.Close(); err != nil {
		logger.Warn("Main", "Close: %v", err)
	}
	if err := source.Close(); err != nil {
		logger.Warn("Main", "Close source: %v", err)
	}
	logger.Info("Main", "Server stopped")
	os.Exit(exitCode)
}
