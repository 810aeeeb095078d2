package dispatch

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Header names carrying the broker's quota signals. The values arrive
// out-of-band on a prior response, not from the task about to run.
const (
	HeaderRateLimitRemaining = "X-Ratelimit-Remaining"
	HeaderRateLimitReset     = "X-Ratelimit-Reset"
)

const defaultMaxJitter = 50 * time.Millisecond

// Throttle holds the most recent quota signal extracted from a broker
// response. remaining < 0 means unknown.
type Throttle struct {
	mu        sync.Mutex
	remaining int64
	resetAt   time.Time
	maxJitter time.Duration
}

// NewThrottle starts in the unknown state: jitter-only pacing.
func NewThrottle() *Throttle {
	return &Throttle{remaining: -1, maxJitter: defaultMaxJitter}
}

// UpdateFromHeaders ingests remaining-quota and reset-time signals from a
// broker response. Absent or malformed values leave the throttle unknown.
func (t *Throttle) UpdateFromHeaders(h http.Header) {
	remaining := int64(-1)
	if v := h.Get(HeaderRateLimitRemaining); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			remaining = n
		}
	}
	var resetAt time.Time
	if v := h.Get(HeaderRateLimitReset); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil && epoch > 0 {
			resetAt = time.Unix(epoch, 0)
		}
	}
	t.Update(remaining, resetAt)
}

// Update replaces the shared throttle state.
func (t *Throttle) Update(remaining int64, resetAt time.Time) {
	t.mu.Lock()
	t.remaining = remaining
	t.resetAt = resetAt
	t.mu.Unlock()
}

// Delay computes how long the next task must wait before executing.
// Exhausted quota with a known reset deadline waits until the deadline
// plus jitter (reported as a backoff); otherwise a small random jitter
// avoids synchronized bursts across workers.
func (t *Throttle) Delay(now time.Time) (wait time.Duration, backoff bool) {
	t.mu.Lock()
	remaining, resetAt := t.remaining, t.resetAt
	t.mu.Unlock()

	jitter := rand.N(t.maxJitter)
	if remaining == 0 && !resetAt.IsZero() && resetAt.After(now) {
		return resetAt.Sub(now) + jitter, true
	}
	return jitter, false
}
