package guardian

import (
	"testing"
	"time"

	"github.com/sentryhost/guardian/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func machineConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		RAMSoftPct:        85,
		RAMHardPct:        92,
		CPUSoftPct:        80,
		CPUHardPct:        95,
		DiskHardPct:       95,
		TempHardC:         90,
		RAMRecoveryPct:    70,
		CPURecoveryPct:    75,
		MeasurementWindow: 3,
		RecoveryWindow:    45 * time.Second,
		LockdownDuration:  30 * time.Minute,
	}
}

func softSample() metrics.SystemMetrics {
	return metrics.SystemMetrics{CPUPct: 85, RAMPct: 50}
}

func calmSample() metrics.SystemMetrics {
	return metrics.SystemMetrics{CPUPct: 70, RAMPct: 50}
}

func TestSoftTriggerRequiresFullConsecutiveWindow(t *testing.T) {
	m := NewMachine(machineConfig())
	t0 := time.Now()
	tick := func(i int, sample metrics.SystemMetrics) Action {
		return m.Evaluate(t0.Add(time.Duration(i)*5*time.Second), sample)
	}

	// soft, soft, normal, soft, soft, soft: the interruption at sample 3
	// restarts the count; BROWNOUT fires exactly once, on sample 6
	samples := []metrics.SystemMetrics{
		softSample(), softSample(), calmSample(),
		softSample(), softSample(), softSample(),
	}

	transitions := 0
	for i, sample := range samples {
		action := tick(i, sample)
		if action == ActionActivateModerate {
			transitions++
			assert.Equal(t, 5, i, "transition must happen on the 6th sample")
		}
	}

	assert.Equal(t, 1, transitions)
	assert.Equal(t, StateBrownout, m.State())
}

func TestHardTriggerBypassesHysteresis(t *testing.T) {
	m := NewMachine(machineConfig())

	action := m.Evaluate(time.Now(), metrics.SystemMetrics{RAMPct: 95, CPUPct: 10})

	assert.Equal(t, ActionKill, action)
	assert.Equal(t, StateEmergency, m.State())
}

func TestHardTemperatureTrigger(t *testing.T) {
	m := NewMachine(machineConfig())
	temp := 91.0

	action := m.Evaluate(time.Now(), metrics.SystemMetrics{CPUPct: 10, TempC: &temp})

	assert.Equal(t, ActionKill, action)
	assert.Equal(t, StateEmergency, m.State())
}

func TestBrownoutEscalatesToDegradedAfterSecondWindow(t *testing.T) {
	m := NewMachine(machineConfig())
	t0 := time.Now()

	i := 0
	tick := func(sample metrics.SystemMetrics) Action {
		a := m.Evaluate(t0.Add(time.Duration(i)*5*time.Second), sample)
		i++
		return a
	}

	for j := 0; j < 2; j++ {
		assert.Equal(t, ActionNone, tick(softSample()))
	}
	assert.Equal(t, ActionActivateModerate, tick(softSample()))

	// The window restarts on entry; a second full run of soft samples
	// escalates
	for j := 0; j < 2; j++ {
		assert.Equal(t, ActionNone, tick(softSample()))
	}
	assert.Equal(t, ActionActivateHeavy, tick(softSample()))
	assert.Equal(t, StateDegraded, m.State())
}

func TestRecoveryTimerResetsOnBadSample(t *testing.T) {
	m := NewMachine(machineConfig())
	t0 := time.Now()

	// Drive into BROWNOUT
	for i := 0; i < 3; i++ {
		m.Evaluate(t0.Add(time.Duration(i)*5*time.Second), softSample())
	}
	require.Equal(t, StateBrownout, m.State())

	base := t0.Add(15 * time.Second)
	// Good sample starts the timer, bad sample must reset it to unset
	m.Evaluate(base, calmSample())
	m.Evaluate(base.Add(5*time.Second), softSample())

	// 45s of good samples measured from the restart, not the first good one
	restart := base.Add(10 * time.Second)
	for i := 0; i < 9; i++ {
		action := m.Evaluate(restart.Add(time.Duration(i)*5*time.Second), calmSample())
		assert.Equal(t, ActionNone, action)
		assert.Equal(t, StateBrownout, m.State())
	}

	action := m.Evaluate(restart.Add(45*time.Second), calmSample())
	assert.Equal(t, ActionDeactivate, action)
	assert.Equal(t, StateNormal, m.State())
}

func TestEndToEndBrownoutAndRecovery(t *testing.T) {
	m := NewMachine(machineConfig())
	t0 := time.Now()

	// 3 consecutive ticks at cpu 85 (soft 80): BROWNOUT on tick 3
	var action Action
	for i := 0; i < 3; i++ {
		action = m.Evaluate(t0.Add(time.Duration(i)*5*time.Second), softSample())
	}
	assert.Equal(t, ActionActivateModerate, action)
	assert.Equal(t, StateBrownout, m.State())

	// 45s of ticks at cpu 70 (recovery 75): back to NORMAL
	recoveryStart := t0.Add(15 * time.Second)
	for i := 0; ; i++ {
		now := recoveryStart.Add(time.Duration(i) * 5 * time.Second)
		action = m.Evaluate(now, calmSample())
		if action != ActionNone {
			assert.GreaterOrEqual(t, now.Sub(recoveryStart), 45*time.Second)
			break
		}
		require.Less(t, i, 20, "recovery never fired")
	}
	assert.Equal(t, ActionDeactivate, action)
	assert.Equal(t, StateNormal, m.State())
}

func TestLockdownIgnoresMetricsAndReleasesOnTime(t *testing.T) {
	m := NewMachine(machineConfig())
	t0 := time.Now()

	m.EnterLockdown(t0)
	require.Equal(t, StateLockdown, m.State())

	// Hard-threshold metrics during lockdown change nothing
	action := m.Evaluate(t0.Add(time.Minute), metrics.SystemMetrics{RAMPct: 99, CPUPct: 99})
	assert.Equal(t, ActionNone, action)
	assert.Equal(t, StateLockdown, m.State())

	until, ok := m.LockdownUntil()
	require.True(t, ok)
	assert.Equal(t, t0.Add(30*time.Minute), until)

	// Release is purely elapsed time
	action = m.Evaluate(t0.Add(30*time.Minute), metrics.SystemMetrics{RAMPct: 99})
	assert.Equal(t, ActionDeactivate, action)
	assert.Equal(t, StateNormal, m.State())
}

func TestEmergencyFromBrownout(t *testing.T) {
	m := NewMachine(machineConfig())
	t0 := time.Now()

	for i := 0; i < 3; i++ {
		m.Evaluate(t0.Add(time.Duration(i)*5*time.Second), softSample())
	}
	require.Equal(t, StateBrownout, m.State())

	action := m.Evaluate(t0.Add(20*time.Second), metrics.SystemMetrics{RAMPct: 95})
	assert.Equal(t, ActionKill, action)
	assert.Equal(t, StateEmergency, m.State())
}

func TestThresholdValidation(t *testing.T) {
	t.Run("recovery must sit below soft", func(t *testing.T) {
		config := machineConfig()
		config.RAMRecoveryPct = 85
		err := config.validateThresholds()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ram_recovery_pct")
	})

	t.Run("soft must not exceed hard", func(t *testing.T) {
		config := machineConfig()
		config.CPUSoftPct = 96
		err := config.validateThresholds()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cpu_soft_pct")
	})

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, machineConfig().validateThresholds())
	})
}
