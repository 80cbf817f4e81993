package killseq

import (
	"fmt"
	"time"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "killseq"

	DRAIN_TIMEOUT_DEFAULT        = 10 * time.Second
	GRACE_PERIOD_DEFAULT         = 10 * time.Second
	HEALTH_DELAY_DEFAULT         = 3 * time.Second
	MAX_RESTART_ATTEMPTS_DEFAULT = 4
	KILL_COOLDOWN_SHORT_DEFAULT  = 300 * time.Second
	KILL_COOLDOWN_LONG_DEFAULT   = 1800 * time.Second
	MAX_KILLS_PER_WINDOW_DEFAULT = 3
)

// restartScheduleDefault is a fixed schedule, not a backoff formula. Once
// attempts outnumber entries the last delay is reused.
var restartScheduleDefault = []time.Duration{5 * time.Second, 15 * time.Second, 60 * time.Second}

type Config struct {
	DrainTimeout time.Duration `mapstructure:"drain_timeout" validate:"gt=0"`
	GracePeriod  time.Duration `mapstructure:"grace_period" validate:"gt=0"`
	// HealthDelay is slept between a successful relaunch and the first
	// health probe, giving the listener time to bind
	HealthDelay time.Duration `mapstructure:"health_delay"`

	RestartSchedule    []time.Duration `mapstructure:"restart_schedule" validate:"min=1"`
	MaxRestartAttempts int             `mapstructure:"max_restart_attempts" validate:"gte=1"`

	KillCooldownShort time.Duration `mapstructure:"kill_cooldown_short" validate:"gt=0"`
	KillCooldownLong  time.Duration `mapstructure:"kill_cooldown_long" validate:"gt=0"`
	MaxKillsPerWindow int           `mapstructure:"max_kills_per_window" validate:"gte=1"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	killseqConfig := viper.Sub(keyValue)
	if killseqConfig == nil {
		killseqConfig = viper.New()
	}

	killseqConfig.BindEnv("drain_timeout", "GUARDIAN_KILLSEQ_DRAIN_TIMEOUT")
	killseqConfig.BindEnv("grace_period", "GUARDIAN_KILLSEQ_GRACE_PERIOD")
	killseqConfig.BindEnv("health_delay", "GUARDIAN_KILLSEQ_HEALTH_DELAY")
	killseqConfig.BindEnv("restart_schedule", "GUARDIAN_KILLSEQ_RESTART_SCHEDULE")
	killseqConfig.BindEnv("max_restart_attempts", "GUARDIAN_KILLSEQ_MAX_RESTART_ATTEMPTS")
	killseqConfig.BindEnv("kill_cooldown_short", "GUARDIAN_KILLSEQ_KILL_COOLDOWN_SHORT")
	killseqConfig.BindEnv("kill_cooldown_long", "GUARDIAN_KILLSEQ_KILL_COOLDOWN_LONG")
	killseqConfig.BindEnv("max_kills_per_window", "GUARDIAN_KILLSEQ_MAX_KILLS_PER_WINDOW")
	killseqConfig.SetDefault("drain_timeout", DRAIN_TIMEOUT_DEFAULT)
	killseqConfig.SetDefault("grace_period", GRACE_PERIOD_DEFAULT)
	killseqConfig.SetDefault("health_delay", HEALTH_DELAY_DEFAULT)
	killseqConfig.SetDefault("restart_schedule", restartScheduleDefault)
	killseqConfig.SetDefault("max_restart_attempts", MAX_RESTART_ATTEMPTS_DEFAULT)
	killseqConfig.SetDefault("kill_cooldown_short", KILL_COOLDOWN_SHORT_DEFAULT)
	killseqConfig.SetDefault("kill_cooldown_long", KILL_COOLDOWN_LONG_DEFAULT)
	killseqConfig.SetDefault("max_kills_per_window", MAX_KILLS_PER_WINDOW_DEFAULT)

	var config Config
	err := killseqConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// scheduleDelay returns the sleep before restart attempt n (1-based),
// clamping to the last scheduled entry.
func (c Config) scheduleDelay(attempt int) time.Duration {
	if len(c.RestartSchedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(c.RestartSchedule) {
		idx = len(c.RestartSchedule) - 1
	}
	return c.RestartSchedule[idx]
}
