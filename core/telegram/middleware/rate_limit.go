package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/akibot/core/logger"
	tghelpers "github.com/m3rciful/akibot/core/telegram/helpers"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the refill period of a single token.
	Interval time.Duration
	// Burst is the bucket size; values below 1 mean 1.
	Burst     int
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// IdleTTL drops limiters of users unseen for this long; 0 means 10 minutes.
	IdleTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware returns a middleware holding one token bucket per user.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var (
		mu       sync.Mutex
		limiters = make(map[int64]*userLimiter)
		lastGC   time.Time
	)
	allow := func(userID int64) bool {
		t := now()
		mu.Lock()
		defer mu.Unlock()
		if t.Sub(lastGC) > opts.IdleTTL {
			for id, ul := range limiters {
				if t.Sub(ul.lastSeen) > opts.IdleTTL {
					delete(limiters, id)
				}
			}
			lastGC = t
		}
		ul, ok := limiters[userID]
		if !ok {
			ul = &userLimiter{lim: rate.NewLimiter(rate.Every(opts.Interval), opts.Burst)}
			limiters[userID] = ul
		}
		ul.lastSeen = t
		return ul.lim.AllowN(t, 1)
	}

	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c)
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if allow(user.ID) {
				return next(c)
			}

			logger.Warn(tghelpers.BuildContext(c), logger.CompTG, "tg.rate_limit",
				slog.String("status", "rejected"),
				slog.String("kind", kind),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
