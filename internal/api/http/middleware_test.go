package apihttp

import (
	"bufio"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCorsMiddlewareAllowsAnyOriginWithoutWhitelist(t *testing.T) {
	handler := corsMiddleware(nil, okHandler())

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Errorf("expected origin reflected, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(got, jobIDHeader) {
		t.Errorf("expected %s exposed, got %q", jobIDHeader, got)
	}
}

func TestCorsMiddlewareWhitelist(t *testing.T) {
	handler := corsMiddleware([]string{"  http://allowed.com/ ", "http://b.com"}, okHandler())

	tests := []struct {
		origin string
		want   string
	}{
		{"http://allowed.com", "http://allowed.com"},
		{"http://b.com/", "http://b.com/"},
		{"http://evil.com", ""},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tc.want {
				t.Errorf("allow-origin = %q, want %q", got, tc.want)
			}
			if rec.Code != http.StatusOK {
				t.Errorf("expected handler to still execute, got %d", rec.Code)
			}
		})
	}
}

func TestCorsMiddlewarePreflight(t *testing.T) {
	called := false
	handler := corsMiddleware(nil, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodOptions, "/process", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 for preflight, got %d", rec.Code)
	}
	if called {
		t.Error("preflight should not reach the next handler")
	}
}

func TestOriginPolicyCheckOrigin(t *testing.T) {
	open := newOriginPolicy(nil)
	closed := newOriginPolicy([]string{"https://app.test"})

	tests := []struct {
		name   string
		policy originPolicy
		origin string
		want   bool
	}{
		{"open policy", open, "https://anything.test", true},
		{"listed", closed, "https://app.test", true},
		{"listed with slash", closed, "https://app.test/", true},
		{"unlisted", closed, "https://evil.test", false},
		{"no origin header", closed, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if got := tc.policy.checkOrigin(req); got != tc.want {
				t.Errorf("checkOrigin = %v, want %v", got, tc.want)
			}
		})
	}
}

func requestFrom(path, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":4000"
	return req
}

func TestRateLimitMiddlewarePerClient(t *testing.T) {
	handler := rateLimitMiddleware(0.001, 2, okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("/jobs", "10.0.0.1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("/jobs", "10.0.0.1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Errorf("expected Retry-After: 1, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "rate_limited") {
		t.Errorf("expected rate_limited body, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestFrom("/jobs", "10.0.0.2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("other client should have its own bucket, got %d", rec.Code)
	}

	for _, path := range []string{"/health", "/metrics", "/ws"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom(path, "10.0.0.1"))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected bypass, got %d", path, rec.Code)
		}
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	handler := rateLimitMiddleware(0, 0, okHandler())
	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestFrom("/jobs", "10.0.0.1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestClientLimiterSweepsIdleBuckets(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	l := newClientLimiter(1, 1)
	l.now = func() time.Time { return now }

	l.allow("a")
	l.allow("b")
	if len(l.buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(l.buckets))
	}

	now = now.Add(limiterIdleTTL + time.Second)
	l.allow("b")
	if _, ok := l.buckets["a"]; ok {
		t.Fatal("expected idle bucket swept")
	}
	if len(l.buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(l.buckets))
	}
}

func TestRecoveryMiddlewareCatchesPanic(t *testing.T) {
	handler := recoveryMiddleware(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/process", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_error") {
		t.Errorf("expected error envelope, got %q", rec.Body.String())
	}
}

func TestRecoveryMiddlewareKeepsStartedResponse(t *testing.T) {
	handler := recoveryMiddleware(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		panic("stream broke")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/process", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "partial" {
		t.Fatalf("expected untouched partial response, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecoveryMiddlewareReraisesAbort(t *testing.T) {
	handler := recoveryMiddleware(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", v)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestMiddlewareChainRecoveryOutermost(t *testing.T) {
	logger := slog.Default()
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("chain panic")
	})
	chain := recoveryMiddleware(logger,
		rateLimitMiddleware(100, 200,
			metricsMiddleware(
				corsMiddleware(nil,
					loggingMiddleware(logger, inner)))))

	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/x", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 from recovery middleware, got %d", rec.Code)
	}
}

func TestLoggingMiddlewarePassesThrough(t *testing.T) {
	handler := loggingMiddleware(slog.Default(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(jobIDHeader, "job-1")
		_, _ = w.Write([]byte("hello"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())

	rec.WriteHeader(http.StatusNotFound)
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.Write([]byte("hello"))
	_, _ = rec.Write([]byte(" world"))

	if rec.status != http.StatusNotFound {
		t.Errorf("expected first status kept, got %d", rec.status)
	}
	if rec.written != 11 {
		t.Errorf("expected 11 bytes, got %d", rec.written)
	}
	if newStatusRecorder(rec) != rec {
		t.Error("expected an existing recorder to be reused")
	}
}

type fakeHijacker struct {
	http.ResponseWriter
}

func (f *fakeHijacker) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, nil
}

func TestStatusRecorderHijack(t *testing.T) {
	rec := newStatusRecorder(&fakeHijacker{ResponseWriter: httptest.NewRecorder()})
	if _, _, err := rec.Hijack(); err != nil {
		t.Fatalf("expected hijack to succeed, got %v", err)
	}
	if rec.status != http.StatusSwitchingProtocols {
		t.Errorf("expected 101 recorded, got %d", rec.status)
	}

	rec = newStatusRecorder(httptest.NewRecorder())
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("expected error when the writer cannot be hijacked")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		want       string
	}{
		{"forwarded first", "1.2.3.4, 5.6.7.8", "", "9.9.9.9:1", "1.2.3.4"},
		{"empty forwarded entry", " , 5.6.7.8", "10.0.0.1", "9.9.9.9:1", "10.0.0.1"},
		{"real ip", "", "10.0.0.1", "9.9.9.9:1", "10.0.0.1"},
		{"remote addr", "", "", "192.168.1.1:5555", "192.168.1.1"},
		{"remote addr without port", "", "", "192.168.1.1", "192.168.1.1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xRealIP != "" {
				req.Header.Set("X-Real-IP", tc.xRealIP)
			}
			if got := clientIP(req); got != tc.want {
				t.Errorf("clientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abcdef", 3, "abc"},
		{"abc", 0, "abc"},
		{"abçdefgh", 6, "ab..."},
	}
	for _, tc := range tests {
		if got := truncate(tc.in, tc.limit); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestPickRequestLogLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/process", 500, slog.LevelError},
		{"/process", 502, slog.LevelError},
		{"/jobs/x", 404, slog.LevelWarn},
		{"/health", 200, slog.LevelDebug},
		{"/jobs/x/logs", 200, slog.LevelDebug},
		{"/logs", 200, slog.LevelDebug},
		{"/process", 200, slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := pickRequestLogLevel(tc.path, tc.status); got != tc.want {
			t.Errorf("pickRequestLogLevel(%q, %d) = %v, want %v", tc.path, tc.status, got, tc.want)
		}
	}
}

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"/":                  "/",
		"/health":            "/health",
		"/process":           "/process",
		"/jobs":              "/jobs",
		"/jobs/abc":          "/jobs/:id",
		"/jobs/abc/":         "/jobs/:id",
		"/jobs/abc/logs":     "/jobs/:id/logs",
		"/jobs/abc/other":    "/jobs/:id",
		"/logs":              "/logs",
		"/settings/encoding": "/settings",
		"/ws":                "/ws",
		"/metrics":           "/metrics",
		"/favicon.ico":       "/other",
	}
	for in, want := range tests {
		if got := normalizeRoute(in); got != want {
			t.Errorf("normalizeRoute(%q) = %q, want %q", in, got, want)
		}
	}
}
