package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"evalhub/internal/transport/http/api"
	"evalhub/internal/transport/http/shared"
)

// RateLimitKeyFunc picks the bucket a request is counted against.
type RateLimitKeyFunc func(r *http.Request) string

// RateLimit counts every request through it in fixed windows, keyed by user or
// client IP. A limit of zero or less disables it.
func RateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	l := newWindowLimiter(limit, window, UserOrIPKey)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.admit(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit applies tighter limits to credential changes and
// to evaluation writes. Login is limited both per IP and per submitted email.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	credentials := []*windowLimiter{
		newWindowLimiter(max(baseLimit/4, 1), window, shared.ClientIP),
		newWindowLimiter(max(baseLimit/4, 1), window, EmailOrIPKey("email")),
	}
	writes := []*windowLimiter{
		newWindowLimiter(max(baseLimit/2, 1), window, UserOrIPKey),
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var limiters []*windowLimiter
			switch classifyRoute(r) {
			case routeCredentials:
				limiters = credentials
			case routeEvaluationWrite:
				limiters = writes
			}
			for _, l := range limiters {
				if !l.admit(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func UserOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.UserID
	}
	return shared.ClientIP(r)
}

// EmailOrIPKey keys on a JSON body field and restores the body for the handler.
func EmailOrIPKey(field string) RateLimitKeyFunc {
	field = strings.TrimSpace(field)
	if field == "" {
		field = "email"
	}
	return func(r *http.Request) string {
		if email := peekJSONString(r, field); email != "" {
			return "email:" + strings.ToLower(email)
		}
		return shared.ClientIP(r)
	}
}

func peekJSONString(r *http.Request, field string) string {
	if r == nil || r.Body == nil {
		return ""
	}
	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return ""
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload map[string]any
	if json.Unmarshal(raw, &payload) != nil {
		return ""
	}
	value, _ := payload[field].(string)
	return strings.TrimSpace(value)
}

type windowCount struct {
	hits    int
	resetAt time.Time
}

type windowLimiter struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	keyFn     RateLimitKeyFunc
	now       func() time.Time
	counts    map[string]*windowCount
	nextSweep time.Time
}

func newWindowLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *windowLimiter {
	return &windowLimiter{
		limit:  limit,
		window: window,
		keyFn:  keyFn,
		now:    time.Now,
		counts: map[string]*windowCount{},
	}
}

type rateDecision struct {
	allowed   bool
	remaining int
	resetIn   time.Duration
}

func (l *windowLimiter) take(key string) rateDecision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Expired windows are dropped once per window so idle keys do not pile up.
	if now.After(l.nextSweep) {
		for k, c := range l.counts {
			if now.After(c.resetAt) {
				delete(l.counts, k)
			}
		}
		l.nextSweep = now.Add(l.window)
	}

	c, ok := l.counts[key]
	if !ok || now.After(c.resetAt) {
		c = &windowCount{resetAt: now.Add(l.window)}
		l.counts[key] = c
	}
	c.hits++
	return rateDecision{
		allowed:   c.hits <= l.limit,
		remaining: max(l.limit-c.hits, 0),
		resetIn:   c.resetAt.Sub(now),
	}
}

// admit records the request and answers 429 when it is over the limit.
func (l *windowLimiter) admit(w http.ResponseWriter, r *http.Request) bool {
	if l.limit <= 0 {
		return true
	}
	key := l.keyFn(r)
	if key == "" {
		key = shared.ClientIP(r)
	}
	d := l.take(key)

	resetSec := ceilSeconds(d.resetIn)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(resetSec))
	if d.allowed {
		return true
	}

	w.Header().Set("Retry-After", strconv.Itoa(max(resetSec, 1)))
	slog.Warn("rate limit exceeded", "key", key, "method", r.Method, "path", r.URL.Path, "limit", l.limit)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

type routeClass int

const (
	routeOther routeClass = iota
	routeCredentials
	routeEvaluationWrite
)

type routeRule struct {
	pattern string
	class   routeClass
}

// Patterns use path.Match syntax against the path below /api/v1.
var limitedRoutes = []routeRule{
	{"/auth/login", routeCredentials},
	{"/auth/password", routeCredentials},
	{"/auth/mfa/*", routeCredentials},
	{"/supervisors/*/password", routeCredentials},
	{"/settings/evaluations", routeEvaluationWrite},
	{"/settings/evaluations/toggle", routeEvaluationWrite},
	{"/employees/*/evaluations", routeEvaluationWrite},
	{"/employees/import", routeEvaluationWrite},
}

func classifyRoute(r *http.Request) routeClass {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return routeOther
	}
	p := strings.TrimPrefix(r.URL.Path, "/api/v1")
	if p == "" {
		p = "/"
	}
	for _, rule := range limitedRoutes {
		if ok, _ := path.Match(rule.pattern, p); ok {
			return rule.class
		}
	}
	return routeOther
}
