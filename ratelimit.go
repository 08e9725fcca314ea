package fluent

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/MasterGenotype/Modular-1/store"
)

// Default windows match the API's published quotas.
const (
	DefaultDailyLimit  = 20000
	DefaultHourlyLimit = 500

	dailyWindow  = 24 * time.Hour
	hourlyWindow = time.Hour
)

// Rate limit response headers. Reset values are unix epoch seconds.
const (
	HeaderDailyLimit      = "X-RL-Daily-Limit"
	HeaderDailyRemaining  = "X-RL-Daily-Remaining"
	HeaderDailyReset      = "X-RL-Daily-Reset"
	HeaderHourlyLimit     = "X-RL-Hourly-Limit"
	HeaderHourlyRemaining = "X-RL-Hourly-Remaining"
	HeaderHourlyReset     = "X-RL-Hourly-Reset"
)

// RateLimitStatus is a point-in-time snapshot of both windows.
type RateLimitStatus struct {
	DailyLimit      int
	DailyRemaining  int
	DailyReset      time.Time
	HourlyLimit     int
	HourlyRemaining int
	HourlyReset     time.Time
}

// CanRequest reports whether both windows still have capacity. It looks at
// the counters alone; a zero counter whose reset has elapsed stays at zero
// until the next header update replenishes it, so CanRequest remains false
// until then. TimeUntilAllowed reports zero in that situation.
func (s RateLimitStatus) CanRequest() bool {
	return s.DailyRemaining > 0 && s.HourlyRemaining > 0
}

// TimeUntilAllowed returns how long until a request would be permitted.
// Zero means a request is permitted now. An exhausted daily window takes
// precedence: the hourly window is not consulted until daily recovers, and
// an elapsed reset reports zero immediately.
func (s RateLimitStatus) TimeUntilAllowed() time.Duration {
	return s.timeUntilAllowedAt(time.Now())
}

func (s RateLimitStatus) timeUntilAllowedAt(now time.Time) time.Duration {
	if s.DailyRemaining <= 0 {
		if now.Before(s.DailyReset) {
			return s.DailyReset.Sub(now)
		}
		return 0
	}
	if s.HourlyRemaining <= 0 && now.Before(s.HourlyReset) {
		return s.HourlyReset.Sub(now)
	}
	return 0
}

// LowLimitCallback is invoked when a window's remaining count first drops to
// or below the configured threshold.
type LowLimitCallback func(window string, remaining int)

// RateLimiter tracks the API's daily and hourly quota windows. Counters are
// decremented locally per request and corrected from response headers, which
// are the authoritative source. An elapsed reset lifts the block but does not
// replenish the counter; only a header update does that.
type RateLimiter struct {
	mu sync.Mutex

	dailyLimit      int
	dailyRemaining  int
	dailyReset      time.Time
	hourlyLimit     int
	hourlyRemaining int
	hourlyReset     time.Time

	lowThreshold  int
	lowCallback   LowLimitCallback
	dailyLowSeen  bool
	hourlyLowSeen bool

	store  store.Store
	logger Logger

	now func() time.Time
}

// NewRateLimiter returns a limiter primed with the default quotas and reset
// timestamps one window out from now.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		dailyLimit:      DefaultDailyLimit,
		dailyRemaining:  DefaultDailyLimit,
		hourlyLimit:     DefaultHourlyLimit,
		hourlyRemaining: DefaultHourlyLimit,
		logger:          noopLogger{},
		now:             time.Now,
	}
	n := rl.now()
	rl.dailyReset = n.Add(dailyWindow)
	rl.hourlyReset = n.Add(hourlyWindow)
	return rl
}

// SetStore attaches a persistence backend used by SaveState and LoadState.
func (rl *RateLimiter) SetStore(s store.Store) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.store = s
}

// SetLogger attaches a logger for rate limit events.
func (rl *RateLimiter) SetLogger(l Logger) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if l == nil {
		l = noopLogger{}
	}
	rl.logger = l
}

// SetLimits overrides both window limits and refills the remaining counters.
func (rl *RateLimiter) SetLimits(daily, hourly int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.dailyLimit = daily
	rl.dailyRemaining = daily
	rl.hourlyLimit = hourly
	rl.hourlyRemaining = hourly
	rl.dailyLowSeen = false
	rl.hourlyLowSeen = false
}

// OnLowLimit registers a callback fired once per window, edge triggered,
// when remaining first drops to or below threshold. A header update that
// raises remaining above the threshold re-arms the trigger.
func (rl *RateLimiter) OnLowLimit(threshold int, cb LowLimitCallback) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.lowThreshold = threshold
	rl.lowCallback = cb
	rl.dailyLowSeen = false
	rl.hourlyLowSeen = false
}

// Status returns a snapshot of both windows.
func (rl *RateLimiter) Status() RateLimitStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.statusLocked()
}

func (rl *RateLimiter) statusLocked() RateLimitStatus {
	return RateLimitStatus{
		DailyLimit:      rl.dailyLimit,
		DailyRemaining:  rl.dailyRemaining,
		DailyReset:      rl.dailyReset,
		HourlyLimit:     rl.hourlyLimit,
		HourlyRemaining: rl.hourlyRemaining,
		HourlyReset:     rl.hourlyReset,
	}
}

// CanMakeRequest reports whether both windows still have capacity.
func (rl *RateLimiter) CanMakeRequest() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.statusLocked().CanRequest()
}

// WaitIfNeeded blocks until a request is permitted or ctx is done. When a
// window's reset has already elapsed it returns immediately; the counter is
// only replenished by the next header update. The daily window is checked
// before the hourly one.
func (rl *RateLimiter) WaitIfNeeded(ctx context.Context) error {
	for {
		rl.mu.Lock()
		now := rl.now()
		wait := rl.statusLocked().timeUntilAllowedAt(now)
		rl.mu.Unlock()

		if wait <= 0 {
			return nil
		}

		rl.logger.Debug("rate limit wait", "duration", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &CancelledError{Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

// RecordRequest decrements both counters for a request sent locally.
// Counters clamp at zero; the server's headers remain authoritative.
func (rl *RateLimiter) RecordRequest() {
	rl.mu.Lock()
	if rl.dailyRemaining > 0 {
		rl.dailyRemaining--
	}
	if rl.hourlyRemaining > 0 {
		rl.hourlyRemaining--
	}
	daily, hourly := rl.dailyRemaining, rl.hourlyRemaining
	rl.checkLowLocked()
	rl.mu.Unlock()

	rl.logger.Debug("request recorded", "dailyRemaining", daily, "hourlyRemaining", hourly)
}

// UpdateFromHeaders applies the six rate limit headers from a response.
// Each field updates independently; absent or malformed headers leave the
// current value untouched.
func (rl *RateLimiter) UpdateFromHeaders(headers Headers) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := headerInt(headers, HeaderDailyLimit); ok {
		rl.dailyLimit = v
	}
	if v, ok := headerInt(headers, HeaderDailyRemaining); ok {
		rl.dailyRemaining = v
		if v > rl.lowThreshold {
			rl.dailyLowSeen = false
		}
	}
	if v, ok := headerInt(headers, HeaderHourlyLimit); ok {
		rl.hourlyLimit = v
	}
	if v, ok := headerInt(headers, HeaderHourlyRemaining); ok {
		rl.hourlyRemaining = v
		if v > rl.lowThreshold {
			rl.hourlyLowSeen = false
		}
	}
	if v, ok := headerEpoch(headers, HeaderDailyReset); ok {
		rl.dailyReset = v
	}
	if v, ok := headerEpoch(headers, HeaderHourlyReset); ok {
		rl.hourlyReset = v
	}

	rl.checkLowLocked()
}

func (rl *RateLimiter) checkLowLocked() {
	if rl.lowCallback == nil {
		return
	}
	if !rl.dailyLowSeen && rl.dailyRemaining <= rl.lowThreshold {
		rl.dailyLowSeen = true
		go rl.lowCallback("daily", rl.dailyRemaining)
	}
	if !rl.hourlyLowSeen && rl.hourlyRemaining <= rl.lowThreshold {
		rl.hourlyLowSeen = true
		go rl.lowCallback("hourly", rl.hourlyRemaining)
	}
}

// SaveState persists the current window state through the attached store.
func (rl *RateLimiter) SaveState(ctx context.Context) error {
	rl.mu.Lock()
	s := rl.store
	st := store.State{
		DailyLimit:      rl.dailyLimit,
		DailyRemaining:  rl.dailyRemaining,
		HourlyLimit:     rl.hourlyLimit,
		HourlyRemaining: rl.hourlyRemaining,
		DailyReset:      rl.dailyReset.Unix(),
		HourlyReset:     rl.hourlyReset.Unix(),
	}
	rl.mu.Unlock()

	if s == nil {
		return &ConfigurationError{Problems: []string{"rate limiter has no state store attached"}}
	}
	return s.Save(ctx, st)
}

// LoadState restores window state from the attached store. A missing state
// record leaves the current values untouched and returns nil.
func (rl *RateLimiter) LoadState(ctx context.Context) error {
	rl.mu.Lock()
	s := rl.store
	rl.mu.Unlock()

	if s == nil {
		return &ConfigurationError{Problems: []string{"rate limiter has no state store attached"}}
	}

	st, found, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	rl.mu.Lock()
	rl.dailyLimit = st.DailyLimit
	rl.dailyRemaining = st.DailyRemaining
	rl.hourlyLimit = st.HourlyLimit
	rl.hourlyRemaining = st.HourlyRemaining
	rl.dailyReset = time.Unix(st.DailyReset, 0)
	rl.hourlyReset = time.Unix(st.HourlyReset, 0)
	rl.mu.Unlock()
	return nil
}

func headerInt(h Headers, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

func headerEpoch(h Headers, key string) (time.Time, bool) {
	raw := h.Get(key)
	if raw == "" {
		return time.Time{}, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return time.Time{}, false
	}
	return time.Unix(v, 0), true
}
