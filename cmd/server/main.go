package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	apihttp "jumpcut/internal/api/http"
	"jumpcut/internal/app"
	"jumpcut/internal/domain/ports"
	"jumpcut/internal/metrics"
	mongorepo "jumpcut/internal/repository/mongo"
	"jumpcut/internal/services/media/ffmpeg"
	"jumpcut/internal/services/media/ffprobe"
	"jumpcut/internal/services/transcription/assemblyai"
	"jumpcut/internal/services/transcription/cache"
	"jumpcut/internal/storage/memory"
	"jumpcut/internal/telemetry"
	"jumpcut/internal/usecase"

	"go.mongodb.org/mongo-driver/mongo"
)

const serviceName = "jumpcut"

var version = "dev"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	if cfg.AssemblyAIAPIKey == "" {
		logger.Error("ASSEMBLYAI_API_KEY is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, version)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("workDir", cfg.WorkDir),
		slog.String("transcriptCache", cfg.TranscriptCache),
		slog.Int64("maxConcurrentBatches", cfg.MaxConcurrentBatches),
		slog.Int64("maxUploadBytes", cfg.MaxUploadBytes),
		slog.Bool("settingsPersistence", cfg.MongoURI != ""),
	)

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		logger.Error("work dir unavailable", slog.String("dir", cfg.WorkDir), slog.String("error", err.Error()))
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(rootCtx, 15*time.Second)
	defer cancel()

	var settingsStore app.EncodingSettingsStore
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		mongoClient, err = mongorepo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		settingsStore = mongorepo.NewEncodingSettingsRepository(mongoClient, cfg.MongoDatabase)
	}

	encodingMgr := app.NewEncodingSettingsManager(cfg.EncodingDefaults(), settingsStore, logger)
	if err := encodingMgr.Load(ctx); err != nil {
		logger.Warn("encoding settings load failed", slog.String("error", err.Error()))
	}

	transcriptCache, redisClient, err := newTranscriptCache(ctx, cfg)
	if err != nil {
		logger.Error("transcript cache init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store := memory.NewJobStore(
		memory.WithGlobalCapacity(cfg.LogBufferGlobal),
		memory.WithJobCapacity(cfg.LogBufferPerJob),
		memory.WithLogger(logger),
	)

	transcriber := assemblyai.NewClient(assemblyai.Config{
		APIKey:  cfg.AssemblyAIAPIKey,
		BaseURL: cfg.AssemblyAIBaseURL,
		Poll: assemblyai.PollPolicy{
			Interval:    cfg.PollInterval,
			Multiplier:  cfg.PollMultiplier,
			MaxInterval: cfg.PollMaxInterval,
			Timeout:     cfg.PollTimeout,
		},
		Retry:  assemblyai.DefaultRetryConfig(),
		Logger: logger,
	})
	encoder := ffmpeg.New(cfg.FFMPEGPath, ffmpeg.WithLogger(logger))

	pipeline := usecase.ProcessVideo{
		Transcriber: transcriber,
		Encoder:     encoder,
		Store:       store,
		Settings:    encodingMgr,
		Probe:       ffprobe.New(cfg.FFProbePath),
		Cache:       transcriptCache,
		CacheTTL:    cfg.TranscriptCacheTTL,
		Logger:      logger,
		Now:         time.Now,
	}
	runBatch := usecase.RunBatch{
		Pipeline: pipeline,
		Concat:   encoder,
		Store:    store,
		WorkDir:  cfg.WorkDir,
		Slots:    semaphore.NewWeighted(cfg.MaxConcurrentBatches),
		Logger:   logger,
		Now:      time.Now,
	}

	handler := apihttp.NewServer(runBatch,
		apihttp.WithJobs(store),
		apihttp.WithEncodingSettings(encodingMgr),
		apihttp.WithAllowedOrigins(cfg.CORSAllowedOrigins),
		apihttp.WithMaxUploadBytes(cfg.MaxUploadBytes),
		apihttp.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		apihttp.WithVersion(version),
		apihttp.WithLogger(logger),
	)
	store.Subscribe(handler.PublishUpdate)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close error", slog.String("error", err.Error()))
		}
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}

	logger.Info("server stopped")
}

// newTranscriptCache returns a nil cache when caching is off. The redis
// client is returned so it can be closed on shutdown.
func newTranscriptCache(ctx context.Context, cfg app.Config) (ports.TranscriptCache, *redis.Client, error) {
	switch cfg.TranscriptCache {
	case "memory":
		return cache.NewMemory(cfg.TranscriptCacheMax), nil, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		rc := cache.NewRedis(client)
		if err := rc.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return rc, client, nil
	default:
		return nil, nil, nil
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
