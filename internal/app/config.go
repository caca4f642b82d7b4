package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"jumpcut/internal/domain"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	WorkDir   string

	AssemblyAIAPIKey  string
	AssemblyAIBaseURL string
	PollInterval      time.Duration
	PollMaxInterval   time.Duration
	PollMultiplier    float64
	PollTimeout       time.Duration

	TranscriptCache    string // off, memory or redis
	TranscriptCacheTTL time.Duration
	TranscriptCacheMax int
	RedisURL           string

	FFMPEGPath   string
	FFProbePath  string
	VideoCodec   string
	AudioCodec   string
	Preset       string
	CRF          int
	AudioBitrate string

	SilenceThresholdMs int64

	MaxUploadBytes       int64
	MaxConcurrentBatches int64
	LogBufferGlobal      int
	LogBufferPerJob      int

	MongoURI      string // empty disables settings persistence
	MongoDatabase string

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		WorkDir:   getEnv("WORK_DIR", os.TempDir()),

		AssemblyAIAPIKey:  strings.TrimSpace(os.Getenv("ASSEMBLYAI_API_KEY")),
		AssemblyAIBaseURL: getEnv("ASSEMBLYAI_BASE_URL", "https://api.assemblyai.com"),
		PollInterval:      getEnvDuration("TRANSCRIPT_POLL_INTERVAL", 3*time.Second),
		PollMaxInterval:   getEnvDuration("TRANSCRIPT_POLL_MAX_INTERVAL", 3*time.Second),
		PollMultiplier:    getEnvFloat("TRANSCRIPT_POLL_MULTIPLIER", 1),
		PollTimeout:       getEnvDuration("TRANSCRIPT_POLL_TIMEOUT", 30*time.Minute),

		TranscriptCache:    strings.ToLower(getEnv("TRANSCRIPT_CACHE", "off")),
		TranscriptCacheTTL: getEnvDuration("TRANSCRIPT_CACHE_TTL", 24*time.Hour),
		TranscriptCacheMax: int(getEnvInt64("TRANSCRIPT_CACHE_MAX_ENTRIES", 200)),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),

		FFMPEGPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		FFProbePath:  getEnv("FFPROBE_PATH", "ffprobe"),
		VideoCodec:   getEnv("VIDEO_CODEC", "libx264"),
		AudioCodec:   getEnv("AUDIO_CODEC", "aac"),
		Preset:       getEnv("ENCODE_PRESET", ""),
		CRF:          int(getEnvInt64("ENCODE_CRF", 0)),
		AudioBitrate: getEnv("AUDIO_BITRATE", ""),

		SilenceThresholdMs: getEnvInt64("SILENCE_THRESHOLD_MS", 1000),

		MaxUploadBytes:       getEnvPositiveInt64("MAX_UPLOAD_BYTES", 500<<20),
		MaxConcurrentBatches: getEnvPositiveInt64("MAX_CONCURRENT_BATCHES", 2),
		LogBufferGlobal:      int(getEnvPositiveInt64("LOG_BUFFER_GLOBAL", 1000)),
		LogBufferPerJob:      int(getEnvPositiveInt64("LOG_BUFFER_PER_JOB", 500)),

		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DB", "jumpcut"),

		CORSAllowedOrigins: parseCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst:     int(getEnvInt64("RATE_LIMIT_BURST", 100)),
	}
}

// EncodingDefaults returns the encoding settings configured through the
// environment. Persisted settings loaded later take precedence.
func (c Config) EncodingDefaults() domain.EncodingSettings {
	return domain.EncodingSettings{
		VideoCodec:         c.VideoCodec,
		AudioCodec:         c.AudioCodec,
		Preset:             c.Preset,
		CRF:                c.CRF,
		AudioBitrate:       c.AudioBitrate,
		SilenceThresholdMs: c.SilenceThresholdMs,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvPositiveInt64 is getEnvInt64 for sizes and counts where zero would
// disable the feature outright.
func getEnvPositiveInt64(key string, fallback int64) int64 {
	if v := getEnvInt64(key, fallback); v > 0 {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go duration strings and plain integers as seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func parseCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
