package guardian

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentryhost/guardian/pkg/brownout"
	"github.com/sentryhost/guardian/pkg/killseq"
	"github.com/sentryhost/guardian/pkg/metrics"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// scriptedCollector replays a fixed list of samples, then repeats the last.
type scriptedCollector struct {
	samples []metrics.SystemMetrics
	idx     int
}

func (c *scriptedCollector) Collect(ctx context.Context) metrics.SystemMetrics {
	if c.idx < len(c.samples)-1 {
		s := c.samples[c.idx]
		c.idx++
		return s
	}
	return c.samples[len(c.samples)-1]
}

// MockKillSequence implements KillSequence for testing
type MockKillSequence struct {
	mock.Mock
	state killseq.SequenceState
}

func (m *MockKillSequence) Execute(ctx context.Context) error {
	return m.Called().Error(0)
}

func (m *MockKillSequence) State() killseq.SequenceState {
	return m.state
}

// MockServingClient implements serving.Client for testing
type MockServingClient struct {
	mock.Mock
}

func (m *MockServingClient) StopIntake(ctx context.Context) error      { return m.Called().Error(0) }
func (m *MockServingClient) ResumeIntake(ctx context.Context) error    { return m.Called().Error(0) }
func (m *MockServingClient) StopAllSessions(ctx context.Context) error { return m.Called().Error(0) }
func (m *MockServingClient) SwitchModel(ctx context.Context, model string) error {
	return m.Called(model).Error(0)
}
func (m *MockServingClient) SetContextWindow(ctx context.Context, tokens int) error {
	return m.Called(tokens).Error(0)
}
func (m *MockServingClient) SetRAGTopK(ctx context.Context, topK int) error {
	return m.Called(topK).Error(0)
}
func (m *MockServingClient) DisableTools(ctx context.Context, tools []string) error {
	return m.Called(tools).Error(0)
}
func (m *MockServingClient) EnableAllTools(ctx context.Context) error { return m.Called().Error(0) }

func brownoutTestConfig() brownout.Config {
	return brownout.Config{
		PrimaryModel:   "primary:70b",
		DegradedModel:  "small:3b",
		NormalContext:  32768,
		ReducedContext: 4096,
		NormalTopK:     10,
		ReducedTopK:    3,
		ModerateTools:  []string{"web_search"},
		HeavyTools:     []string{"web_search", "shell"},
		CallTimeout:    5 * time.Second,
	}
}

func limiterTestConfig() killseq.Config {
	return killseq.Config{
		KillCooldownShort: 300 * time.Second,
		KillCooldownLong:  1800 * time.Second,
		MaxKillsPerWindow: 3,
	}
}

func newTestLoop(collector MetricsCollector, sequence KillSequence, servingClient *MockServingClient) *Loop {
	logger := logrus.New()
	manager := brownout.NewManager(brownoutTestConfig(), servingClient, logger)
	limiter := killseq.NewRateLimiter(limiterTestConfig(), logger)
	return NewLoop(machineConfig(), collector, manager, sequence, limiter, logger)
}

func TestSuccessfulKillResolvesEmergency(t *testing.T) {
	servingClient := new(MockServingClient)
	sequence := new(MockKillSequence)
	sequence.On("Execute").Return(nil).Once()

	collector := &scriptedCollector{samples: []metrics.SystemMetrics{
		{RAMPct: 95, CPUPct: 10},
		{RAMPct: 40, CPUPct: 10},
	}}

	loop := newTestLoop(collector, sequence, servingClient)
	loop.Tick(context.Background())

	status := loop.Status()
	assert.Equal(t, StateNormal, status.State)
	assert.Equal(t, 1, status.RateLimiter.KillsInWindow)
	sequence.AssertExpectations(t)
}

func TestRateLimitedKillEntersLockdownWithoutKilling(t *testing.T) {
	servingClient := new(MockServingClient)
	sequence := new(MockKillSequence)
	sequence.On("Execute").Return(nil).Once()

	collector := &scriptedCollector{samples: []metrics.SystemMetrics{
		{RAMPct: 95},
	}}

	loop := newTestLoop(collector, sequence, servingClient)

	// First emergency: kill allowed and succeeds
	loop.Tick(context.Background())
	require.Equal(t, StateNormal, loop.Status().State)

	// Second emergency inside the short cooldown: no kill, straight to
	// lockdown
	loop.Tick(context.Background())

	status := loop.Status()
	assert.Equal(t, StateLockdown, status.State)
	assert.NotNil(t, status.LockdownUntil)
	assert.Equal(t, 1, status.RateLimiter.KillsInWindow)
	sequence.AssertNumberOfCalls(t, "Execute", 1)
}

func TestFailedKillEntersLockdown(t *testing.T) {
	servingClient := new(MockServingClient)
	sequence := new(MockKillSequence)
	sequence.On("Execute").Return(errors.New("relaunch attempts exhausted")).Once()
	// Intake was stopped in phase 1 and the failed sequence never resumed it
	sequence.state = killseq.SequenceState{IntakeStopped: true}

	collector := &scriptedCollector{samples: []metrics.SystemMetrics{
		{RAMPct: 95},
	}}

	loop := newTestLoop(collector, sequence, servingClient)
	loop.Tick(context.Background())

	status := loop.Status()
	assert.Equal(t, StateLockdown, status.State)
	assert.True(t, status.Metrics.IntakeBlocked)
}

func TestSustainedSoftTriggerActivatesBrownout(t *testing.T) {
	servingClient := new(MockServingClient)
	servingClient.On("SwitchModel", "small:3b").Return(nil)
	servingClient.On("SetContextWindow", 4096).Return(nil)
	servingClient.On("SetRAGTopK", 3).Return(nil)
	servingClient.On("DisableTools", []string{"web_search"}).Return(nil)

	sequence := new(MockKillSequence)

	collector := &scriptedCollector{samples: []metrics.SystemMetrics{
		{CPUPct: 85, RAMPct: 50},
	}}

	loop := newTestLoop(collector, sequence, servingClient)
	for i := 0; i < 3; i++ {
		loop.Tick(context.Background())
	}

	status := loop.Status()
	assert.Equal(t, StateBrownout, status.State)
	assert.True(t, status.Brownout.Active)
	assert.Equal(t, "moderate", status.Brownout.LevelName)
	assert.True(t, status.Metrics.Degraded)
	assert.Len(t, status.History, 3)
	servingClient.AssertExpectations(t)
	sequence.AssertNotCalled(t, "Execute")
}

func TestBrownoutActivationRetriesWhileConditionPersists(t *testing.T) {
	servingClient := new(MockServingClient)
	servingClient.On("SwitchModel", "small:3b").Return(errors.New("serving hiccup")).Once()
	servingClient.On("SwitchModel", "small:3b").Return(nil)
	servingClient.On("SetContextWindow", 4096).Return(nil)
	servingClient.On("SetRAGTopK", 3).Return(nil)
	servingClient.On("DisableTools", []string{"web_search"}).Return(nil)

	sequence := new(MockKillSequence)
	collector := &scriptedCollector{samples: []metrics.SystemMetrics{
		{CPUPct: 85, RAMPct: 50},
	}}

	loop := newTestLoop(collector, sequence, servingClient)

	// The transition tick fails its first serving call, leaving the host
	// undegraded
	for i := 0; i < 3; i++ {
		loop.Tick(context.Background())
	}
	require.Equal(t, StateBrownout, loop.Status().State)
	require.False(t, loop.Status().Brownout.Active)

	// The condition persists, so the next tick converges
	loop.Tick(context.Background())

	status := loop.Status()
	assert.True(t, status.Brownout.Active)
	assert.Equal(t, "moderate", status.Brownout.LevelName)
	servingClient.AssertExpectations(t)
}

func TestBrownoutDeactivationRetriesAfterRecovery(t *testing.T) {
	servingClient := new(MockServingClient)
	servingClient.On("SwitchModel", "small:3b").Return(nil)
	servingClient.On("SetContextWindow", 4096).Return(nil)
	servingClient.On("SetRAGTopK", 3).Return(nil)
	servingClient.On("DisableTools", []string{"web_search"}).Return(nil)
	servingClient.On("SwitchModel", "primary:70b").Return(errors.New("serving hiccup")).Once()
	servingClient.On("SwitchModel", "primary:70b").Return(nil)
	servingClient.On("SetContextWindow", 32768).Return(nil)
	servingClient.On("SetRAGTopK", 10).Return(nil)
	servingClient.On("EnableAllTools").Return(nil)

	sequence := new(MockKillSequence)
	collector := &scriptedCollector{samples: []metrics.SystemMetrics{
		{CPUPct: 85},
		{CPUPct: 85},
		{CPUPct: 85},
		{CPUPct: 10},
	}}

	config := machineConfig()
	config.RecoveryWindow = time.Nanosecond
	logger := logrus.New()
	manager := brownout.NewManager(brownoutTestConfig(), servingClient, logger)
	limiter := killseq.NewRateLimiter(limiterTestConfig(), logger)
	loop := NewLoop(config, collector, manager, sequence, limiter, logger)

	// Three hot ticks enter brownout and apply degradation
	for i := 0; i < 3; i++ {
		loop.Tick(context.Background())
	}
	require.True(t, loop.Status().Brownout.Active)

	// First calm tick starts the recovery timer; the second elapses it and
	// transitions to NORMAL, but the restore fails mid-way
	loop.Tick(context.Background())
	loop.Tick(context.Background())
	require.Equal(t, StateNormal, loop.Status().State)
	require.True(t, loop.Status().Brownout.Active)

	// The next tick retries the restore and fully recovers
	loop.Tick(context.Background())
	assert.False(t, loop.Status().Brownout.Active)
	servingClient.AssertExpectations(t)
}

func TestTickSurvivesPanic(t *testing.T) {
	servingClient := new(MockServingClient)
	sequence := new(MockKillSequence)

	loop := newTestLoop(panicCollector{}, sequence, servingClient)

	assert.NotPanics(t, func() {
		loop.Tick(context.Background())
	})
}

type panicCollector struct{}

func (panicCollector) Collect(ctx context.Context) metrics.SystemMetrics {
	panic("sensor driver bug")
}
