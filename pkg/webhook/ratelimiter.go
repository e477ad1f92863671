package webhook

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const rateWindow = time.Minute

// RateLimiter implements per-IP rate limiting with sliding window
type RateLimiter struct {
	limits            map[string]*RateLimitState
	maxRequestsPerMin int
	mu                sync.Mutex
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
	logger            zerolog.Logger
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
func NewRateLimiter(maxRequestsPerMinute int, logger zerolog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limits:            make(map[string]*RateLimitState),
		maxRequestsPerMin: maxRequestsPerMinute,
		cleanupInterval:   5 * time.Minute,
		stopCleanup:       make(chan struct{}),
		now:               time.Now,
		logger:            logger.With().Str("component", "rate-limiter").Logger(),
	}

	go rl.startCleanup()

	return rl
}

// CheckLimit records a request from ip and reports whether it is allowed.
func (rl *RateLimiter) CheckLimit(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()

	state, exists := rl.limits[ip]
	if !exists {
		state = &RateLimitState{}
		rl.limits[ip] = state
	}
	state.Requests = pruneRequests(state.Requests, now)

	if len(state.Requests) >= rl.maxRequestsPerMin {
		return false
	}

	state.Requests = append(state.Requests, now)
	return true
}

// GetRetryAfter returns the number of seconds until ip may send again.
func (rl *RateLimiter) GetRetryAfter(ip string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	state, exists := rl.limits[ip]
	if !exists || len(state.Requests) == 0 {
		return 0
	}

	retryAfterMs := rateWindow.Milliseconds() - (rl.now().UnixMilli() - state.Requests[0])
	if retryAfterMs < 0 {
		return 0
	}

	// round up
	return int((retryAfterMs + 999) / 1000)
}

// Middleware answers 429 with Retry-After once a client exceeds the limit.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.CheckLimit(ip) {
			retryAfter := rl.GetRetryAfter(ip)
			rl.logger.Warn().
				Str("ip", ip).
				Str("path", r.URL.Path).
				Int("retry_after", retryAfter).
				Msg("Rate limit exceeded")

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: msgTooManyRequests})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops clients with no request inside the window.
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now().UnixMilli()
	for ip, state := range rl.limits {
		state.Requests = pruneRequests(state.Requests, now)
		if len(state.Requests) == 0 {
			delete(rl.limits, ip)
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

func pruneRequests(requests []int64, now int64) []int64 {
	valid := requests[:0]
	for _, reqTime := range requests {
		if now-reqTime < rateWindow.Milliseconds() {
			valid = append(valid, reqTime)
		}
	}
	return valid
}

// clientIP extracts the client IP, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
