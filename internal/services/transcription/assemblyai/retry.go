package assemblyai

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// RetryConfig controls the exponential backoff of idempotent transcript queries.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns 3 attempts, 500ms then 1s between them.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// delay returns the wait before retry number n (1-based), capped at MaxDelay.
func (cfg RetryConfig) delay(n int) time.Duration {
	d := float64(cfg.InitialDelay)
	mult := cfg.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 1; i < n; i++ {
		d *= mult
		if cfg.MaxDelay > 0 && time.Duration(d) >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}
	return time.Duration(d)
}

// RetryWithBackoff calls fn until it succeeds, fails permanently or runs out
// of attempts. A server-sent Retry-After replaces the computed delay; other
// delays get ±25% jitter. The last error is returned.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var err error
	for n := 1; ; n++ {
		if err = fn(); err == nil {
			return nil
		}
		if n >= attempts || !isTransientError(err) {
			return err
		}

		wait := jitter(cfg.delay(n))
		var se *statusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			wait = se.RetryAfter
		}
		if cfg.MaxDelay > 0 && wait > cfg.MaxDelay {
			wait = cfg.MaxDelay
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}

// statusError is an API response with a non-200 status.
type statusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func newStatusError(resp *http.Response, body string) *statusError {
	se := &statusError{Code: resp.StatusCode, Body: body}
	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		se.RetryAfter = time.Duration(secs) * time.Second
	}
	return se
}

func (e *statusError) Error() string {
	msg := strconv.Itoa(e.Code) + " " + http.StatusText(e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// isTransientError reports whether a failed query may succeed if repeated:
// throttling, server errors, timeouts and dropped connections.
func isTransientError(err error) bool {
	var se *statusError
	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.As(err, &se):
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return true
	case errors.As(err, &netErr):
		return true
	}
	return false
}
