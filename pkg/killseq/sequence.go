package killseq

import (
	"context"
	"fmt"
	"time"

	"github.com/sentryhost/guardian/pkg/serving"
	log "github.com/sirupsen/logrus"
)

// ProcessController is the slice of backend process control the sequence
// needs; implemented by backend.ProcessController, faked in tests.
type ProcessController interface {
	FindServePIDs() []int32
	Terminate(pid int32) error
	ForceKill(pid int32) error
	Spawn() (int32, error)
}

// HealthChecker gates phase 4; implemented by backend.HealthClient.
type HealthChecker interface {
	Healthy(ctx context.Context) error
	SmokeTest(ctx context.Context) error
}

// SequenceState is the sequence's contribution to the status snapshot.
// IntakeStopped stays true after a failed sequence: intake was stopped in
// phase 1 and nothing ever resumed it.
type SequenceState struct {
	RestartAttempts int        `json:"restart_attempts"`
	LastSuccess     *time.Time `json:"last_success,omitempty"`
	IntakeStopped   bool       `json:"intake_stopped"`
}

// Sequence is the five-phase protocol: stop intake, terminate, restart,
// health-gate, resume intake. Execute blocks its caller for the full duration;
// the control loop must not evaluate transitions mid-kill.
type Sequence struct {
	config  Config
	serving serving.Client
	procs   ProcessController
	health  HealthChecker
	logger  *log.Logger

	restartAttempts int
	lastSuccess     *time.Time
	intakeStopped   bool

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

func NewSequence(config Config, servingClient serving.Client, procs ProcessController, health HealthChecker, logger *log.Logger) *Sequence {
	return &Sequence{
		config:  config,
		serving: servingClient,
		procs:   procs,
		health:  health,
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// Execute runs all five phases in order. Phases 1 and 5 degrade to warnings;
// phases 2, 3, and 4 abort the sequence on failure.
func (s *Sequence) Execute(ctx context.Context) error {
	s.logger.Warn("kill sequence starting")

	s.stopIntakeAndDrain(ctx)

	if err := s.terminateBackend(ctx); err != nil {
		return fmt.Errorf("kill sequence: %w", err)
	}

	if err := s.restartWithBackoff(); err != nil {
		return fmt.Errorf("kill sequence: %w", err)
	}

	if err := s.healthGate(ctx); err != nil {
		return fmt.Errorf("kill sequence: %w", err)
	}

	s.resumeIntake(ctx)

	now := time.Now()
	s.lastSuccess = &now
	s.logger.Info("kill sequence completed successfully")
	return nil
}

// State returns restart bookkeeping for status reporting.
func (s *Sequence) State() SequenceState {
	return SequenceState{
		RestartAttempts: s.restartAttempts,
		LastSuccess:     s.lastSuccess,
		IntakeStopped:   s.intakeStopped,
	}
}

// Phase 1: stop intake and drain in-flight requests. Never fatal; if the
// serving system is unreachable the backend is likely wedged anyway.
func (s *Sequence) stopIntakeAndDrain(ctx context.Context) {
	if err := s.serving.StopIntake(ctx); err != nil {
		s.logger.Warnf("phase 1: stop intake failed: %v", err)
	} else {
		s.intakeStopped = true
	}
	s.logger.Infof("phase 1: draining for %s", s.config.DrainTimeout)
	s.sleep(s.config.DrainTimeout)
}

// Phase 2: graceful terminate, then force-kill survivors. Fails only when
// termination cannot ultimately be confirmed by enumeration.
func (s *Sequence) terminateBackend(ctx context.Context) error {
	if err := s.serving.StopAllSessions(ctx); err != nil {
		s.logger.Warnf("phase 2: per-session stop failed: %v", err)
	}

	pids := s.procs.FindServePIDs()
	if len(pids) == 0 {
		s.logger.Info("phase 2: no backend process found, treating as already stopped")
		return nil
	}

	for _, pid := range pids {
		s.logger.Infof("phase 2: sending graceful terminate to pid %d", pid)
		if err := s.procs.Terminate(pid); err != nil {
			s.logger.Warnf("phase 2: terminate pid %d: %v", pid, err)
		}
	}

	s.sleep(s.config.GracePeriod)

	survivors := s.procs.FindServePIDs()
	for _, pid := range survivors {
		s.logger.Warnf("phase 2: pid %d survived grace period, force killing", pid)
		if err := s.procs.ForceKill(pid); err != nil {
			s.logger.Warnf("phase 2: force kill pid %d: %v", pid, err)
		}
	}

	if len(survivors) > 0 {
		s.sleep(time.Second)
	}

	if remaining := s.procs.FindServePIDs(); len(remaining) > 0 {
		return fmt.Errorf("phase 2: %d backend process(es) still alive after force kill", len(remaining))
	}
	return nil
}

// Phase 3: relaunch with the fixed delay schedule. Stops at first success;
// exhausting all attempts fails the sequence.
func (s *Sequence) restartWithBackoff() error {
	var lastErr error
	for attempt := 1; attempt <= s.config.MaxRestartAttempts; attempt++ {
		s.restartAttempts++
		pid, err := s.procs.Spawn()
		if err == nil {
			s.logger.Infof("phase 3: backend relaunched with pid %d (attempt %d)", pid, attempt)
			return nil
		}
		lastErr = err
		s.logger.Errorf("phase 3: relaunch attempt %d failed: %v", attempt, err)
		if attempt < s.config.MaxRestartAttempts {
			delay := s.config.scheduleDelay(attempt)
			s.logger.Infof("phase 3: waiting %s before next attempt", delay)
			s.sleep(delay)
		}
	}
	return fmt.Errorf("phase 3: all %d relaunch attempts failed: %w", s.config.MaxRestartAttempts, lastErr)
}

// Phase 4: the basic health endpoint is a hard gate; the smoke test is not.
// A cold backend can answer its health endpoint long before a model is
// loaded, so a failed generate is logged for review and swallowed.
func (s *Sequence) healthGate(ctx context.Context) error {
	if s.config.HealthDelay > 0 {
		s.sleep(s.config.HealthDelay)
	}

	if err := s.health.Healthy(ctx); err != nil {
		return fmt.Errorf("phase 4: health gate failed: %w", err)
	}
	s.logger.Info("phase 4: backend health endpoint is up")

	if err := s.health.SmokeTest(ctx); err != nil {
		s.logger.Warnf("phase 4: smoke test failed (non-fatal): %v", err)
	}
	return nil
}

// Phase 5: resume intake. Never fatal; the flag clears on the next
// successful call once the serving system is reachable again.
func (s *Sequence) resumeIntake(ctx context.Context) {
	if err := s.serving.ResumeIntake(ctx); err != nil {
		s.logger.Warnf("phase 5: resume intake failed: %v", err)
	} else {
		s.intakeStopped = false
	}
}
