package quota

import (
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/marketmind/marketmind/pkg/model"
)

const (
	hourlyWindow = time.Hour
	dailyWindow  = 24 * time.Hour

	defaultCapacity = 10000
)

// Remaining reports how many requests the identity has left after a
// successful Check.
type Remaining struct {
	Hourly int `json:"remaining_hourly"`
	Daily  int `json:"remaining_daily"`
}

// counter tracks requests within one rolling window. The window is anchored
// at the counter's own first increment, not at a clock boundary.
type counter struct {
	count int
	start time.Time
}

func (c *counter) expired(now time.Time, window time.Duration) bool {
	return c.count > 0 && now.Sub(c.start) >= window
}

// current returns the count that is still valid at the given time.
func (c *counter) current(now time.Time, window time.Duration) int {
	if c.expired(now, window) {
		return 0
	}
	return c.count
}

type record struct {
	hourly   counter
	daily    counter
	lastSeen time.Time
}

// Limiter is an in-memory request limiter keyed by identity. A request
// counts against both the hourly and the daily window at once; exceeding
// either is enough to reject. All accounting happens under one lock so the
// limit comparison and the increment are atomic.
type Limiter struct {
	hourlyLimit int
	dailyLimit  int
	capacity    int
	now         func() time.Time

	mu      sync.Mutex
	records map[string]*record
}

type Option func(*Limiter)

// WithCapacity overrides the identity capacity ceiling.
func WithCapacity(n int) Option {
	return func(l *Limiter) {
		l.capacity = n
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter with the given per-identity limits.
func New(hourlyLimit, dailyLimit int, opts ...Option) *Limiter {
	l := &Limiter{
		hourlyLimit: hourlyLimit,
		dailyLimit:  dailyLimit,
		capacity:    defaultCapacity,
		now:         time.Now,
		records:     make(map[string]*record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check records one request for the identity and returns the remaining
// budget. It fails with model.ErrQuotaExceeded when the request would push
// either counter over its limit; a rejected call mutates nothing.
func (l *Limiter) Check(identity string) (*Remaining, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	rec, ok := l.records[identity]
	if !ok {
		rec = &record{}
	}

	hourly := rec.hourly.current(now, hourlyWindow) + 1
	daily := rec.daily.current(now, dailyWindow) + 1

	if hourly > l.hourlyLimit || daily > l.dailyLimit {
		return nil, goerr.Wrap(model.ErrQuotaExceeded,
			"rate limit exceeded, wait before sending more requests",
			goerr.V("identity", identity),
			goerr.V("hourly", hourly-1),
			goerr.V("daily", daily-1),
		)
	}

	if !ok {
		l.evictIfFull(now)
		l.records[identity] = rec
	}

	// A counter that just reset (or was never hit) re-anchors its window now.
	if hourly == 1 {
		rec.hourly.start = now
	}
	if daily == 1 {
		rec.daily.start = now
	}
	rec.hourly.count = hourly
	rec.daily.count = daily
	rec.lastSeen = now

	return &Remaining{
		Hourly: l.hourlyLimit - hourly,
		Daily:  l.dailyLimit - daily,
	}, nil
}

// evictIfFull keeps the record map under the capacity ceiling. Fully expired
// identities go first; if everything is still live, the least recently seen
// entry is dropped.
func (l *Limiter) evictIfFull(now time.Time) {
	if len(l.records) < l.capacity {
		return
	}

	for id, rec := range l.records {
		if rec.hourly.current(now, hourlyWindow) == 0 && rec.daily.current(now, dailyWindow) == 0 {
			delete(l.records, id)
		}
	}

	for len(l.records) >= l.capacity {
		var oldestID string
		var oldest time.Time
		for id, rec := range l.records {
			if oldestID == "" || rec.lastSeen.Before(oldest) {
				oldestID = id
				oldest = rec.lastSeen
			}
		}
		delete(l.records, oldestID)
	}
}

// Size returns the number of tracked identities.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
