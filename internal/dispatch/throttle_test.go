package dispatch

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayUnknownQuotaIsJitterOnly(t *testing.T) {
	th := NewThrottle()

	for range 20 {
		wait, backoff := th.Delay(time.Now())
		assert.False(t, backoff)
		assert.GreaterOrEqual(t, wait, time.Duration(0))
		assert.Less(t, wait, defaultMaxJitter)
	}
}

func TestDelayExhaustedQuotaWaitsForReset(t *testing.T) {
	th := NewThrottle()
	now := time.Now()
	reset := now.Add(2 * time.Second)
	th.Update(0, reset)

	wait, backoff := th.Delay(now)
	assert.True(t, backoff)
	assert.GreaterOrEqual(t, wait, 2*time.Second)
	assert.Less(t, wait, 2*time.Second+defaultMaxJitter)
}

func TestDelayExhaustedQuotaPastResetIsJitterOnly(t *testing.T) {
	th := NewThrottle()
	now := time.Now()
	th.Update(0, now.Add(-time.Second))

	wait, backoff := th.Delay(now)
	assert.False(t, backoff)
	assert.Less(t, wait, defaultMaxJitter)
}

func TestDelayRemainingQuotaIsJitterOnly(t *testing.T) {
	th := NewThrottle()
	th.Update(42, time.Now().Add(time.Minute))

	wait, backoff := th.Delay(time.Now())
	assert.False(t, backoff)
	assert.Less(t, wait, defaultMaxJitter)
}

func TestUpdateFromHeaders(t *testing.T) {
	now := time.Now()
	reset := now.Add(3 * time.Second)

	th := NewThrottle()
	h := http.Header{}
	h.Set(HeaderRateLimitRemaining, "0")
	h.Set(HeaderRateLimitReset, strconv.FormatInt(reset.Unix(), 10))
	th.UpdateFromHeaders(h)

	wait, backoff := th.Delay(now)
	assert.True(t, backoff)
	assert.Greater(t, wait, time.Second)
}

func TestUpdateFromHeadersMalformedLeavesUnknown(t *testing.T) {
	th := NewThrottle()
	h := http.Header{}
	h.Set(HeaderRateLimitRemaining, "not-a-number")
	h.Set(HeaderRateLimitReset, "soon")
	th.UpdateFromHeaders(h)

	wait, backoff := th.Delay(time.Now())
	assert.False(t, backoff)
	assert.Less(t, wait, defaultMaxJitter)
}
