package killseq

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// RateLimiter bounds how often the guardian may kill the backend. The
// ledger is an explicit time-ordered list owned by the control loop and
// pruned to the long window; kills are irreversible, so a rejection here
// sends the guardian to lockdown rather than letting it thrash.
type RateLimiter struct {
	config Config
	logger *log.Logger
	ledger []time.Time
}

// LimiterState is the limiter's contribution to the status snapshot.
type LimiterState struct {
	KillsInWindow int        `json:"kills_in_window"`
	LastKill      *time.Time `json:"last_kill,omitempty"`
}

func NewRateLimiter(config Config, logger *log.Logger) *RateLimiter {
	return &RateLimiter{
		config: config,
		logger: logger,
	}
}

// Allow reports whether a kill may proceed at now. It does not record the
// kill; callers Record only kills that were actually attempted.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.prune(now)

	if n := len(r.ledger); n > 0 {
		if since := now.Sub(r.ledger[n-1]); since < r.config.KillCooldownShort {
			r.logger.Warnf("kill rejected: last kill was %s ago, short cooldown is %s",
				since.Round(time.Second), r.config.KillCooldownShort)
			return false
		}
	}

	if len(r.ledger) >= r.config.MaxKillsPerWindow {
		r.logger.Warnf("kill rejected: %d kills within the last %s reached the cap of %d",
			len(r.ledger), r.config.KillCooldownLong, r.config.MaxKillsPerWindow)
		return false
	}

	return true
}

// Record appends a kill timestamp to the ledger.
func (r *RateLimiter) Record(now time.Time) {
	r.prune(now)
	r.ledger = append(r.ledger, now)
}

// State returns ledger counters for status reporting.
func (r *RateLimiter) State() LimiterState {
	s := LimiterState{KillsInWindow: len(r.ledger)}
	if n := len(r.ledger); n > 0 {
		last := r.ledger[n-1]
		s.LastKill = &last
	}
	return s
}

// prune drops ledger entries older than the long rate-limit window.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.config.KillCooldownLong)
	kept := r.ledger[:0]
	for _, t := range r.ledger {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.ledger = kept
}
