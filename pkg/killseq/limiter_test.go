package killseq

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func limiterConfig() Config {
	return Config{
		KillCooldownShort: 300 * time.Second,
		KillCooldownLong:  1800 * time.Second,
		MaxKillsPerWindow: 3,
	}
}

func TestShortCooldownRejectsSecondKill(t *testing.T) {
	r := NewRateLimiter(limiterConfig(), logrus.New())
	t0 := time.Now()

	assert.True(t, r.Allow(t0))
	r.Record(t0)

	// 100s later: inside the 300s short cooldown
	assert.False(t, r.Allow(t0.Add(100*time.Second)))
}

func TestShortCooldownExpires(t *testing.T) {
	r := NewRateLimiter(limiterConfig(), logrus.New())
	t0 := time.Now()

	r.Record(t0)
	assert.True(t, r.Allow(t0.Add(301*time.Second)))
}

func TestLongWindowCapRejectsFourthKill(t *testing.T) {
	r := NewRateLimiter(limiterConfig(), logrus.New())
	t0 := time.Now()

	// Three kills, each outside the short cooldown of the previous
	for i := 0; i < 3; i++ {
		ts := t0.Add(time.Duration(i) * 400 * time.Second)
		assert.True(t, r.Allow(ts), "kill %d should be allowed", i+1)
		r.Record(ts)
	}

	// A 4th attempt within 1800s of the earliest of the prior three
	fourth := t0.Add(1700 * time.Second)
	assert.False(t, r.Allow(fourth))
}

func TestLongWindowPrunes(t *testing.T) {
	r := NewRateLimiter(limiterConfig(), logrus.New())
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		r.Record(t0.Add(time.Duration(i) * 400 * time.Second))
	}

	// Once the earliest kill falls out of the 1800s window the cap clears
	later := t0.Add(1900 * time.Second)
	assert.True(t, r.Allow(later))
	assert.Equal(t, 2, r.State().KillsInWindow)
}

func TestStateReportsLastKill(t *testing.T) {
	r := NewRateLimiter(limiterConfig(), logrus.New())

	assert.Nil(t, r.State().LastKill)
	assert.Equal(t, 0, r.State().KillsInWindow)

	t0 := time.Now()
	r.Record(t0)
	state := r.State()
	assert.Equal(t, 1, state.KillsInWindow)
	assert.True(t, state.LastKill.Equal(t0))
}
