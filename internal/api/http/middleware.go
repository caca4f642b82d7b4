package apihttp

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"jumpcut/internal/metrics"
)

// statusRecorder remembers what the wrapped handler wrote. It forwards
// Hijack and Flush so websocket upgrades and streamed downloads still work.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	written     int64
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	if !rec.wroteHeader {
		rec.status = code
		rec.wroteHeader = true
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	rec.wroteHeader = true
	n, err := rec.ResponseWriter.Write(b)
	rec.written += int64(n)
	return n, err
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	rec.wroteHeader = true
	rec.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// originPolicy decides which browser origins may call the API or open the
// websocket. An empty policy admits every origin.
type originPolicy map[string]struct{}

func newOriginPolicy(allowed []string) originPolicy {
	p := make(originPolicy, len(allowed))
	for _, origin := range allowed {
		if origin = canonicalOrigin(origin); origin != "" {
			p[origin] = struct{}{}
		}
	}
	return p
}

func canonicalOrigin(origin string) string {
	return strings.TrimSuffix(strings.TrimSpace(origin), "/")
}

func (p originPolicy) allows(origin string) bool {
	if len(p) == 0 {
		return true
	}
	_, ok := p[canonicalOrigin(origin)]
	return ok
}

// checkOrigin is used by the websocket upgrader. Non-browser clients send
// no Origin and are always accepted.
func (p originPolicy) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return canonicalOrigin(origin) == "" || p.allows(origin)
}

const (
	corsAllowMethods  = "GET, POST, PATCH, PUT, OPTIONS"
	corsAllowHeaders  = "Content-Type, " + jobIDHeader
	corsExposeHeaders = "Content-Length, Content-Disposition, " + jobIDHeader
)

func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	policy := newOriginPolicy(allowed)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := strings.TrimSpace(r.Header.Get("Origin")); origin != "" && policy.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		attrs := make([]slog.Attr, 0, 9)
		attrs = append(attrs,
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("bytes", rec.written),
			slog.Int64("durationMs", time.Since(started).Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		)
		if q := r.URL.RawQuery; q != "" {
			attrs = append(attrs, slog.String("query", truncate(q, 180)))
		}
		if r.ContentLength > 0 {
			attrs = append(attrs, slog.Int64("requestBytes", r.ContentLength))
		}
		if jobID := rec.Header().Get(jobIDHeader); jobID != "" {
			attrs = append(attrs, slog.String("jobId", jobID))
		}
		logger.LogAttrs(r.Context(), pickRequestLogLevel(r.URL.Path, rec.status), "http request", attrs...)
	})
}

// recoveryMiddleware turns a handler panic into a 500 unless the response
// has already started. http.ErrAbortHandler is re-raised untouched.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		defer func() {
			v := recover()
			if v == nil {
				return
			}
			if v == http.ErrAbortHandler {
				panic(v)
			}
			logger.Error("panic recovered",
				slog.Any("error", v),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("clientIP", clientIP(r)),
				slog.String("stack", string(debug.Stack())),
			)
			if !rec.wroteHeader {
				writeError(rec, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := normalizeRoute(r.URL.Path)
		if route == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		started := time.Now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(started).Seconds())
	})
}

var staticRoutes = map[string]struct{}{
	"/": {}, "/health": {}, "/metrics": {}, "/process": {},
	"/jobs": {}, "/logs": {}, "/ws": {},
}

// normalizeRoute maps a request path onto a bounded set of metric labels.
func normalizeRoute(path string) string {
	if _, ok := staticRoutes[path]; ok {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/jobs/"); ok {
		if _, sub, nested := strings.Cut(strings.Trim(rest, "/"), "/"); nested && sub == "logs" {
			return "/jobs/:id/logs"
		}
		return "/jobs/:id"
	}
	if strings.HasPrefix(path, "/settings/") {
		return "/settings"
	}
	return "/other"
}

func pickRequestLogLevel(path string, status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	if status >= http.StatusBadRequest {
		return slog.LevelWarn
	}
	switch normalizeRoute(path) {
	case "/health", "/metrics", "/logs", "/jobs/:id/logs":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// truncate shortens value to at most limit bytes without splitting a rune.
func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	const ellipsis = "..."
	cut := limit
	suffix := ""
	if limit > len(ellipsis) {
		cut = limit - len(ellipsis)
		suffix = ellipsis
	}
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + suffix
}

const limiterIdleTTL = 10 * time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address. Buckets idle for
// longer than limiterIdleTTL are swept on the next sweep tick.
type clientLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*clientBucket
	rps       rate.Limit
	burst     int
	now       func() time.Time
	nextSweep time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &clientLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.nextSweep) {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.buckets, k)
			}
		}
		l.nextSweep = now.Add(limiterIdleTTL)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// rateLimitMiddleware limits each client address separately. Probes and the
// websocket endpoint are exempt. A non-positive rps disables limiting.
func rateLimitMiddleware(rps float64, burst int, next http.Handler) http.Handler {
	if rps <= 0 {
		return next
	}
	limiter := newClientLimiter(rps, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/metrics", "/ws":
			next.ServeHTTP(w, r)
			return
		}
		if !limiter.allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
