package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
)

const defaultMaxClients = 10000

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// MaxClients caps the number of tracked client buckets.
	MaxClients int
	// Now defaults to time.Now.
	Now func() time.Time
}

// LoginRateLimitConfig throttles credential guessing on the login endpoint.
func LoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 0.2, BurstSize: 5}
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

// take refills the bucket and consumes one token. When the bucket is empty it
// returns the number of seconds until the next token.
func (b *tokenBucket) take(now time.Time) (bool, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.refillRate <= 0 {
		return false, 1
	}
	wait := int(math.Ceil((1 - b.tokens) / b.refillRate))
	if wait < 1 {
		wait = 1
	}
	return false, wait
}

// RateLimit limits requests per client IP with a token bucket. The client IP
// comes from c.RealIP, so the echo instance must have an IPExtractor that
// only trusts forwarding headers from known proxies (see IPExtractor).
// At most MaxClients buckets are tracked; idle buckets are evicted once they
// would have refilled completely.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	maxClients := cfg.MaxClients
	if maxClients <= 0 {
		maxClients = defaultMaxClients
	}
	idle := time.Minute
	if cfg.RequestsPerSecond > 0 {
		if full := time.Duration(float64(cfg.BurstSize) / cfg.RequestsPerSecond * float64(time.Second)); full > idle {
			idle = full
		}
	}

	var mu sync.Mutex
	buckets := expirable.NewLRU[string, *tokenBucket](maxClients, nil, idle)
	bucketFor := func(key string, at time.Time) *tokenBucket {
		mu.Lock()
		defer mu.Unlock()
		b, ok := buckets.Get(key)
		if !ok {
			b = &tokenBucket{
				tokens:     float64(cfg.BurstSize),
				maxTokens:  float64(cfg.BurstSize),
				refillRate: cfg.RequestsPerSecond,
				lastRefill: at,
			}
			buckets.Add(key, b)
		}
		return b
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			at := now()
			ok, retryAfter := bucketFor(c.RealIP(), at).take(at)
			c.Response().Header().Set("X-RateLimit-Limit", limit)
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// IPExtractor returns the echo IP extractor for the server. Without trusted
// proxies the peer address is used and forwarding headers are ignored. With
// trusted proxies (CIDRs) X-Forwarded-For is honoured only for hops inside
// those ranges.
func IPExtractor(trustedProxies []string) (echo.IPExtractor, error) {
	if len(trustedProxies) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		_, ipNet, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
