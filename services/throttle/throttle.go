package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/tech-arch1tect/safepoint/internal/clock"
	"github.com/tech-arch1tect/safepoint/services/logging"
	"github.com/tech-arch1tect/safepoint/services/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Decision int

const (
	Allowed Decision = iota
	Blocked
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "blocked"
}

type Result struct {
	Decision   Decision
	RetryAfter time.Duration
}

func (r Result) Allowed() bool {
	return r.Decision == Allowed
}

// Throttle holds process-local, per-key request state. Each key's record has
// its own lock; different keys never contend.
type Throttle struct {
	records sync.Map // map[string]*record
	clock   clock.Clock
	logger  *logging.Service
	metrics *metrics.Collector
}

type record struct {
	mu sync.Mutex

	lastRequestAt time.Time
	windowStart   time.Time
	requestCount  int
	blockedUntil  time.Time
	bucket        *rate.Limiter
	lastSeen      time.Time
	evicted       bool
}

func New(clk clock.Clock, logger *logging.Service, collector *metrics.Collector) *Throttle {
	return &Throttle{
		clock:   clock.Or(clk),
		logger:  logger.Named("throttle"),
		metrics: collector,
	}
}

// Allow applies a cooldown policy to key.
func (t *Throttle) Allow(key string, cooldown time.Duration) bool {
	return t.Check(key, Cooldown(cooldown)).Allowed()
}

// RecordAndCheck applies a count-and-block policy to key.
func (t *Throttle) RecordAndCheck(key string, maxRequests int, block time.Duration) Decision {
	return t.Check(key, CountAndBlock(maxRequests, block)).Decision
}

func (t *Throttle) Check(key string, p Policy) Result {
	mapKey := p.scope() + "\x00" + key

	for {
		rec := t.load(mapKey)

		rec.mu.Lock()
		if rec.evicted {
			rec.mu.Unlock()
			continue
		}

		now := t.clock.Now()
		var res Result
		switch p.Kind {
		case KindCooldown:
			res = rec.cooldown(now, p)
		case KindCountAndBlock:
			res = rec.countAndBlock(now, p)
		case KindSteady:
			res = rec.steady(now, p)
		default:
			res = Result{Decision: Allowed}
		}
		rec.lastSeen = now
		rec.mu.Unlock()

		t.observe(key, p, res)
		return res
	}
}

func (t *Throttle) load(mapKey string) *record {
	if v, ok := t.records.Load(mapKey); ok {
		return v.(*record)
	}
	v, _ := t.records.LoadOrStore(mapKey, &record{})
	return v.(*record)
}

func (t *Throttle) observe(key string, p Policy, res Result) {
	t.metrics.ThrottleDecision(p.scope(), res.Decision.String())

	if res.Decision == Blocked {
		t.logger.Warn("request throttled",
			zap.String("policy", p.scope()),
			zap.String("key", key),
			zap.Duration("retry_after", res.RetryAfter))
		return
	}
	t.logger.Debug("request allowed", zap.String("policy", p.scope()), zap.String("key", key))
}

func (r *record) cooldown(now time.Time, p Policy) Result {
	if !r.lastRequestAt.IsZero() {
		// the previous request must be strictly older than the cooldown
		next := r.lastRequestAt.Add(p.Cooldown)
		if !now.After(next) {
			return Result{Decision: Blocked, RetryAfter: max(next.Sub(now), time.Nanosecond)}
		}
	}
	r.lastRequestAt = now
	return Result{Decision: Allowed}
}

func (r *record) countAndBlock(now time.Time, p Policy) Result {
	if now.Before(r.blockedUntil) {
		return Result{Decision: Blocked, RetryAfter: r.blockedUntil.Sub(now)}
	}

	if !r.blockedUntil.IsZero() {
		r.blockedUntil = time.Time{}
		r.requestCount = 0
	}

	if r.requestCount > 0 && !now.Before(r.windowStart.Add(p.BlockDuration)) {
		r.requestCount = 0
	}

	if r.requestCount >= p.MaxRequests {
		r.blockedUntil = now.Add(p.BlockDuration)
		return Result{Decision: Blocked, RetryAfter: p.BlockDuration}
	}

	if r.requestCount == 0 {
		r.windowStart = now
	}
	r.requestCount++
	r.lastRequestAt = now
	return Result{Decision: Allowed}
}

func (r *record) steady(now time.Time, p Policy) Result {
	if r.bucket == nil || r.bucket.Limit() != p.Rate || r.bucket.Burst() != p.Burst {
		r.bucket = rate.NewLimiter(p.Rate, p.Burst)
	}

	if r.bucket.AllowN(now, 1) {
		r.lastRequestAt = now
		return Result{Decision: Allowed}
	}

	reservation := r.bucket.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	reservation.CancelAt(now)
	return Result{Decision: Blocked, RetryAfter: delay}
}

// Evict drops records that have been idle for at least idle and carry no
// active block. It returns the number of records removed.
func (t *Throttle) Evict(idle time.Duration) int {
	now := t.clock.Now()
	removed := 0

	t.records.Range(func(key, value any) bool {
		rec := value.(*record)
		rec.mu.Lock()
		if now.Sub(rec.lastSeen) >= idle && !now.Before(rec.blockedUntil) {
			rec.evicted = true
			t.records.Delete(key)
			removed++
		}
		rec.mu.Unlock()
		return true
	})

	if removed > 0 {
		t.logger.Debug("evicted idle throttle records", zap.Int("records_removed", removed))
	}
	return removed
}

// Len reports the number of live records.
func (t *Throttle) Len() int {
	n := 0
	t.records.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// StartEvictionWorker runs Evict every interval until ctx is cancelled. The
// returned channel is closed once the worker has exited.
func (t *Throttle) StartEvictionWorker(ctx context.Context, interval, idle time.Duration) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Evict(idle)
			}
		}
	}()

	return done
}
