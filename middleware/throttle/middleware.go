package throttle

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/safepoint/services/throttle"
)

type Config struct {
	Throttle       *throttle.Throttle
	Policy         throttle.Policy
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context, retryAfter time.Duration) error
	// Skipper bypasses the throttle for matching requests.
	Skipper func(c echo.Context) bool
}

// Middleware gates a route with cfg.Policy, keyed per actor. Requests are
// counted before the handler runs, whatever its outcome.
func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Throttle == nil {
		panic("throttle middleware requires a Throttle")
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			res := cfg.Throttle.Check(cfg.KeyGenerator(c), cfg.Policy)
			if !res.Allowed() {
				c.Response().Header().Set("Retry-After", retryAfterSeconds(res.RetryAfter))
				return cfg.OnLimitReached(c, res.RetryAfter)
			}

			return next(c)
		}
	}
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return realIP
}

func DefaultOnLimitReached(c echo.Context, _ time.Duration) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
