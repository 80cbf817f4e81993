package guardian

import (
	"context"
	"sync"
	"time"

	"github.com/sentryhost/guardian/pkg/brownout"
	"github.com/sentryhost/guardian/pkg/killseq"
	"github.com/sentryhost/guardian/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// MetricsCollector is the loop's read port; implemented by
// metrics.Collector, substituted in tests.
type MetricsCollector interface {
	Collect(ctx context.Context) metrics.SystemMetrics
}

// KillSequence runs the full stop/terminate/restart/health/resume protocol.
type KillSequence interface {
	Execute(ctx context.Context) error
	State() killseq.SequenceState
}

// Status is the read-only snapshot served to operators and the external
// aggregator.
type Status struct {
	State          State                 `json:"state"`
	StateEnteredAt time.Time             `json:"state_entered_at"`
	LockdownUntil  *time.Time            `json:"lockdown_until,omitempty"`
	Metrics        metrics.SystemMetrics `json:"metrics"`
	// History holds the last measurement window of samples, oldest first
	History []metrics.SystemMetrics `json:"recent_metrics"`
	Brownout       brownout.State        `json:"brownout"`
	KillSequence   killseq.SequenceState `json:"kill_sequence"`
	RateLimiter    killseq.LimiterState  `json:"rate_limiter"`
}

// Loop is the guardian control loop. One tick collects, evaluates, and acts,
// strictly sequential; ticks never overlap, and a running kill sequence
// blocks the loop for its entire duration on purpose. The loop is the only
// writer to machine, history, brownout, and ledger state.
type Loop struct {
	config    Config
	collector MetricsCollector
	brownout  *brownout.Manager
	sequence  KillSequence
	limiter   *killseq.RateLimiter
	machine   *Machine
	history   *metrics.Window
	logger    *log.Logger

	// statusMu guards only the published snapshot read by the status
	// server goroutine; all decision state stays loop-owned and unlocked
	statusMu sync.RWMutex
	status   Status
}

func NewLoop(
	config Config,
	collector MetricsCollector,
	brownoutManager *brownout.Manager,
	sequence KillSequence,
	limiter *killseq.RateLimiter,
	logger *log.Logger,
) *Loop {
	return &Loop{
		config:    config,
		collector: collector,
		brownout:  brownoutManager,
		sequence:  sequence,
		limiter:   limiter,
		machine:   NewMachine(config),
		history:   metrics.NewWindow(config.MeasurementWindow),
		logger:    logger,
	}
}

// Run ticks until ctx is cancelled. Cancellation is honored at tick
// boundaries only: the in-flight tick (including an in-progress kill
// sequence) always finishes first.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Infof("guardian loop starting, poll interval %s", l.config.PollInterval)

	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	l.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("guardian loop shutting down")
			return ctx.Err()
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs a single evaluation cycle. Nothing may escape it: the guardian's
// own crash would remove the only safety net for the monitored host.
func (l *Loop) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("tick panic recovered, continuing: %v", r)
		}
	}()

	now := time.Now()
	sample := l.collector.Collect(ctx)

	before := l.machine.State()
	action := l.machine.Evaluate(now, sample)
	if after := l.machine.State(); after != before {
		l.logger.Warnf("state transition %s -> %s (action: %s)", before, after, action)
	}

	l.execute(ctx, action, now)

	// Flags reflect the state the tick settled on, kill outcome included
	l.stampFlags(&sample)
	l.history.Push(sample)
	l.publishStatus()
}

// execute performs the side effect a transition requested, then reconciles
// the applied degradation against the state the tick settled on. Reconciling
// every tick means a brownout call that failed at a boundary is retried for
// as long as the condition persists.
func (l *Loop) execute(ctx context.Context, action Action, now time.Time) {
	if action == ActionKill {
		l.runKill(ctx, now)
	}
	l.reconcileBrownout(ctx)
}

// reconcileBrownout converges the brownout manager on the level the current
// state requires. Activate and Deactivate are idempotent, so the steady
// state costs no outbound calls.
func (l *Loop) reconcileBrownout(ctx context.Context) {
	switch l.machine.State() {
	case StateNormal:
		if err := l.brownout.Deactivate(ctx); err != nil {
			l.logger.Errorf("brownout deactivation failed, retrying next tick: %v", err)
		}

	case StateBrownout:
		if err := l.brownout.Activate(ctx, brownout.LevelModerate); err != nil {
			l.logger.Errorf("brownout activation failed, retrying next tick: %v", err)
		}

	case StateDegraded:
		if err := l.brownout.Activate(ctx, brownout.LevelHeavy); err != nil {
			l.logger.Errorf("brownout escalation failed, retrying next tick: %v", err)
		}
	}
}

// runKill consults the rate limiter, then blocks on the sequence. A
// rejection goes straight to lockdown without attempting a kill; so does a
// failed sequence. Success resolves the emergency; the reconcile pass then
// lifts any brownout, since the relaunched backend starts clean.
func (l *Loop) runKill(ctx context.Context, now time.Time) {
	if !l.limiter.Allow(now) {
		l.logger.Error("kill rejected by rate limiter, entering lockdown")
		l.machine.EnterLockdown(now)
		return
	}

	l.limiter.Record(now)
	err := l.sequence.Execute(ctx)
	done := time.Now()

	if err != nil {
		l.logger.Errorf("kill sequence failed, entering lockdown: %v", err)
		l.machine.EnterLockdown(done)
		return
	}

	l.machine.ResolveEmergency(done)
}

func (l *Loop) stampFlags(sample *metrics.SystemMetrics) {
	state := l.machine.State()
	sample.Degraded = l.brownout.State().Active || state == StateBrownout || state == StateDegraded
	sample.EmergencyMode = state == StateEmergency || state == StateLockdown
	// Stamped from the sequence's actual intake span; stays true after a
	// failed kill, where intake was stopped and never resumed
	sample.IntakeBlocked = l.sequence.State().IntakeStopped
}

// publishStatus copies loop-owned state into the snapshot the status server
// reads. This is the only mutex in the daemon.
func (l *Loop) publishStatus() {
	s := Status{
		State:          l.machine.State(),
		StateEnteredAt: l.machine.EnteredAt(),
		Metrics:        l.history.Latest(),
		History:        l.history.All(),
		Brownout:       l.brownout.State(),
		KillSequence:   l.sequence.State(),
		RateLimiter:    l.limiter.State(),
	}
	if until, ok := l.machine.LockdownUntil(); ok {
		s.LockdownUntil = &until
	}

	l.statusMu.Lock()
	l.status = s
	l.statusMu.Unlock()
}

// Status returns the last published snapshot; safe for concurrent readers.
func (l *Loop) Status() Status {
	l.statusMu.RLock()
	defer l.statusMu.RUnlock()
	return l.status
}
