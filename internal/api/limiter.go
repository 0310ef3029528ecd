package api

import (
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"slotkeeper/internal/config"
	"slotkeeper/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// rateLimiter keeps a token bucket per client in process and, when a shared
// store is set, a per-minute budget across instances.
type rateLimiter struct {
	limiters sync.Map
	cfg      config.APIRateLimitConfig
	shared   domain.RateLimitStore
	logger   *zerolog.Logger
}

func newRateLimiter(cfg config.APIRateLimitConfig, shared domain.RateLimitStore, logger *zerolog.Logger) *rateLimiter {
	return &rateLimiter{
		cfg:    cfg,
		shared: shared,
		logger: logger,
	}
}

func (l *rateLimiter) getLimiter(key string) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if lim, ok := v.(*rate.Limiter); ok {
			return lim
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	lim := rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)
	actual, loaded := l.limiters.LoadOrStore(key, lim)
	if loaded {
		if actualLim, ok := actual.(*rate.Limiter); ok {
			return actualLim
		}
	}
	return lim
}

func (l *rateLimiter) allow(r *http.Request) bool {
	if l.cfg.RPS <= 0 {
		return true
	}
	key := clientKey(r)

	if l.shared != nil {
		perMinute := int(math.Ceil(l.cfg.RPS * 60))
		allowed, err := l.shared.CheckRateLimit(r.Context(), "http:"+key, perMinute, time.Minute)
		if err != nil {
			// общий лимит недоступен, остается локальный
			l.logger.Warn().Err(err).Msg("shared rate limit check failed")
		} else if !allowed {
			return false
		}
	}
	return l.getLimiter(key).Allow()
}

func (l *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
