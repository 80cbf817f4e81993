package brownout

import (
	"context"
	"fmt"
	"time"

	"github.com/sentryhost/guardian/pkg/serving"
	log "github.com/sirupsen/logrus"
)

// Level is the cumulative brownout severity. Each level implies every
// action of the levels below it.
type Level int

const (
	LevelNone Level = iota
	LevelLight
	LevelModerate
	LevelHeavy
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelLight:
		return "light"
	case LevelModerate:
		return "moderate"
	case LevelHeavy:
		return "heavy"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// State is a point-in-time view of the manager; Duration is computed at
// read time.
type State struct {
	Active      bool          `json:"active"`
	Level       Level         `json:"-"`
	LevelName   string        `json:"level"`
	ActivatedAt time.Time     `json:"activated_at,omitempty"`
	Duration    time.Duration `json:"duration_s,omitempty"`
	FailedCalls int           `json:"failed_calls"`
}

// Manager applies and reverts staged feature degradation through the
// serving client. Owned by the control loop; not safe for concurrent use.
type Manager struct {
	config Config
	client serving.Client
	logger *log.Logger

	active      bool
	level       Level
	activatedAt time.Time
	failedCalls int
}

func NewManager(config Config, client serving.Client, logger *log.Logger) *Manager {
	return &Manager{
		config: config,
		client: client,
		logger: logger,
	}
}

// Activate brings degradation up to level. Actions are cumulative and each
// outbound call carries its own short timeout. Activation succeeds only if
// every required call succeeds; failed calls are logged and counted but not
// retried here; the control loop re-invokes on the next tick while the
// trigger condition persists.
func (m *Manager) Activate(ctx context.Context, level Level) error {
	if level == LevelNone {
		return m.Deactivate(ctx)
	}
	if m.active && m.level >= level {
		return nil
	}

	m.logger.Warnf("activating brownout at level %s", level)

	if level >= LevelLight {
		if err := m.call(ctx, "switch_model", func(ctx context.Context) error {
			return m.client.SwitchModel(ctx, m.config.DegradedModel)
		}); err != nil {
			return err
		}
	}

	if level >= LevelModerate {
		if err := m.call(ctx, "set_context_window", func(ctx context.Context) error {
			return m.client.SetContextWindow(ctx, m.config.ReducedContext)
		}); err != nil {
			return err
		}
		if err := m.call(ctx, "set_rag_top_k", func(ctx context.Context) error {
			return m.client.SetRAGTopK(ctx, m.config.ReducedTopK)
		}); err != nil {
			return err
		}
		if err := m.call(ctx, "disable_moderate_tools", func(ctx context.Context) error {
			return m.client.DisableTools(ctx, m.config.ModerateTools)
		}); err != nil {
			return err
		}
	}

	if level >= LevelHeavy {
		if err := m.call(ctx, "disable_heavy_tools", func(ctx context.Context) error {
			return m.client.DisableTools(ctx, m.config.HeavyTools)
		}); err != nil {
			return err
		}
	}

	if !m.active {
		m.activatedAt = time.Now()
	}
	m.active = true
	m.level = level
	return nil
}

// Deactivate restores full service. Idempotent: when nothing is active it
// returns success without issuing a single outbound call.
func (m *Manager) Deactivate(ctx context.Context) error {
	if !m.active {
		return nil
	}

	m.logger.Infof("deactivating brownout (was %s)", m.level)

	if err := m.call(ctx, "restore_model", func(ctx context.Context) error {
		return m.client.SwitchModel(ctx, m.config.PrimaryModel)
	}); err != nil {
		return err
	}
	if err := m.call(ctx, "restore_context_window", func(ctx context.Context) error {
		return m.client.SetContextWindow(ctx, m.config.NormalContext)
	}); err != nil {
		return err
	}
	if err := m.call(ctx, "restore_rag_top_k", func(ctx context.Context) error {
		return m.client.SetRAGTopK(ctx, m.config.NormalTopK)
	}); err != nil {
		return err
	}
	if err := m.call(ctx, "enable_all_tools", m.client.EnableAllTools); err != nil {
		return err
	}

	m.active = false
	m.level = LevelNone
	m.activatedAt = time.Time{}
	return nil
}

// State returns the current brownout status with duration computed now.
func (m *Manager) State() State {
	s := State{
		Active:      m.active,
		Level:       m.level,
		LevelName:   m.level.String(),
		FailedCalls: m.failedCalls,
	}
	if m.active {
		s.ActivatedAt = m.activatedAt
		s.Duration = time.Since(m.activatedAt)
	}
	return s
}

func (m *Manager) call(ctx context.Context, name string, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, m.config.CallTimeout)
	defer cancel()

	if err := fn(callCtx); err != nil {
		m.failedCalls++
		m.logger.Errorf("brownout action %s failed: %v", name, err)
		return fmt.Errorf("brownout action %s: %w", name, err)
	}
	return nil
}
