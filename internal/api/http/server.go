package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"jumpcut/internal/domain"
	"jumpcut/internal/storage/memory"
	"jumpcut/internal/usecase"
)

const serviceName = "jumpcut"

type RunBatchUseCase interface {
	Execute(ctx context.Context, input usecase.BatchInput) (usecase.BatchResult, error)
}

type JobReader interface {
	GetStatus(jobID domain.JobID) (domain.Job, error)
	ListJobs() map[domain.JobID]domain.Job
	GetLogs(jobID domain.JobID, limit int) ([]domain.LogEntry, error)
	GetLogsSince(jobID domain.JobID, afterSeq int64, limit int) ([]domain.LogEntry, error)
}

type EncodingSettingsController interface {
	Get() domain.EncodingSettings
	Update(settings domain.EncodingSettings) error
}

type Server struct {
	runBatch       RunBatchUseCase
	jobs           JobReader
	encoding       EncodingSettingsController
	allowedOrigins []string
	maxUploadBytes int64
	rateRPS        float64
	rateBurst      int
	version        string
	startedAt      time.Time
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
	upgrader       websocket.Upgrader
}

type ServerOption func(*Server)

func WithJobs(jobs JobReader) ServerOption {
	return func(s *Server) {
		s.jobs = jobs
	}
}

func WithEncodingSettings(ctrl EncodingSettingsController) ServerOption {
	return func(s *Server) {
		s.encoding = ctrl
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMaxUploadBytes caps the size of a /process request body. Zero disables the cap.
func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) {
		s.maxUploadBytes = n
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func WithVersion(version string) ServerOption {
	return func(s *Server) {
		s.version = version
	}
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func NewServer(run RunBatchUseCase, opts ...ServerOption) *Server {
	s := &Server{
		runBatch:  run,
		rateRPS:   50,
		rateBurst: 100,
		version:   "dev",
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     newOriginPolicy(s.allowedOrigins).checkOrigin,
	}
	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/process", s.handleProcess)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/", s.handleJobByID)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/settings/encoding", s.handleEncodingSettings)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), serviceName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health" && !isWebSocketPath(p)
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops the websocket hub, disconnecting all clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}

// PublishUpdate forwards a job store change to websocket clients.
func (s *Server) PublishUpdate(u memory.Update) {
	if s.wsHub == nil {
		return
	}
	switch {
	case u.Kind == memory.UpdateLog && u.Log != nil:
		s.wsHub.Publish(u.Log.JobID, "log", u.Log)
	case u.Kind == memory.UpdateJob && u.Job != nil:
		s.wsHub.Publish(u.Job.ID, "job", u.Job)
	}
}

// handleWS streams job and log events. ?jobId= narrows the stream to one job
// and ?since= first replays log entries after that sequence number.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.wsHub == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	jobID := domain.JobID(strings.TrimSpace(query.Get("jobId")))
	since, err := parseSince(query.Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid since")
		return
	}
	if jobID != "" && s.jobs != nil {
		if _, err := s.jobs.GetStatus(jobID); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:   s.wsHub,
		conn:  conn,
		send:  make(chan []byte, wsSendBuffer),
		jobID: jobID,
	}
	if !s.wsHub.subscribe(client) {
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()

	if since >= 0 && s.jobs != nil {
		backlog, err := s.jobs.GetLogsSince(jobID, since, wsReplayLimit)
		if err != nil {
			s.logger.Warn("ws backlog unavailable",
				slog.String("jobId", string(jobID)),
				slog.String("error", err.Error()),
			)
			return
		}
		s.wsHub.Replay(client, backlog)
	}
}

type rootResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Endpoints map[string]string `json:"endpoints"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, rootResponse{
		Service: serviceName,
		Version: s.version,
		Uptime:  time.Since(s.startedAt).Truncate(time.Second).String(),
		Endpoints: map[string]string{
			"POST /process":                "upload videos (field \"videos\"), returns the joined mp4",
			"GET /jobs":                    "all known jobs",
			"GET /jobs/{id}":               "job status",
			"GET /jobs/{id}/logs":          "job log entries (limit, since)",
			"GET /logs":                    "global log entries (limit, since)",
			"GET|PATCH /settings/encoding": "encoding and silence settings",
			"GET /health":                  "liveness",
			"GET /metrics":                 "prometheus metrics",
			"GET /ws":                      "job and log updates",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func isWebSocketPath(path string) bool {
	return strings.TrimSuffix(path, "/") == "/ws"
}
