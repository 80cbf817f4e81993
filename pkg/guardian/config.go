package guardian

import (
	"fmt"
	"time"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "guardian"

	POLL_INTERVAL_DEFAULT      = 5 * time.Second
	RAM_SOFT_DEFAULT           = 85.0
	RAM_HARD_DEFAULT           = 92.0
	CPU_SOFT_DEFAULT           = 80.0
	CPU_HARD_DEFAULT           = 95.0
	DISK_HARD_DEFAULT          = 95.0
	TEMP_HARD_DEFAULT          = 90.0
	RAM_RECOVERY_DEFAULT       = 70.0
	CPU_RECOVERY_DEFAULT       = 75.0
	MEASUREMENT_WINDOW_DEFAULT = 3
	RECOVERY_WINDOW_DEFAULT    = 60 * time.Second
	LOCKDOWN_DURATION_DEFAULT  = 30 * time.Minute
)

type Config struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`

	// Soft thresholds start the hysteresis clock; hard thresholds fire on
	// a single sample
	RAMSoftPct  float64 `mapstructure:"ram_soft_pct" validate:"gt=0,lte=100"`
	RAMHardPct  float64 `mapstructure:"ram_hard_pct" validate:"gt=0,lte=100"`
	CPUSoftPct  float64 `mapstructure:"cpu_soft_pct" validate:"gt=0,lte=100"`
	CPUHardPct  float64 `mapstructure:"cpu_hard_pct" validate:"gt=0,lte=100"`
	DiskHardPct float64 `mapstructure:"disk_hard_pct" validate:"gt=0,lte=100"`
	TempHardC   float64 `mapstructure:"temp_hard_c" validate:"gt=0"`

	// Recovery thresholds sit strictly below the soft thresholds so the
	// state machine cannot oscillate around a single line
	RAMRecoveryPct float64 `mapstructure:"ram_recovery_pct" validate:"gt=0,lte=100"`
	CPURecoveryPct float64 `mapstructure:"cpu_recovery_pct" validate:"gt=0,lte=100"`

	MeasurementWindow int           `mapstructure:"measurement_window" validate:"gte=1"`
	RecoveryWindow    time.Duration `mapstructure:"recovery_window" validate:"gt=0"`
	LockdownDuration  time.Duration `mapstructure:"lockdown_duration" validate:"gt=0"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	guardianConfig := viper.Sub(keyValue)
	if guardianConfig == nil {
		guardianConfig = viper.New()
	}

	guardianConfig.BindEnv("poll_interval", "GUARDIAN_POLL_INTERVAL")
	guardianConfig.BindEnv("ram_soft_pct", "GUARDIAN_RAM_SOFT_PCT")
	guardianConfig.BindEnv("ram_hard_pct", "GUARDIAN_RAM_HARD_PCT")
	guardianConfig.BindEnv("cpu_soft_pct", "GUARDIAN_CPU_SOFT_PCT")
	guardianConfig.BindEnv("cpu_hard_pct", "GUARDIAN_CPU_HARD_PCT")
	guardianConfig.BindEnv("disk_hard_pct", "GUARDIAN_DISK_HARD_PCT")
	guardianConfig.BindEnv("temp_hard_c", "GUARDIAN_TEMP_HARD_C")
	guardianConfig.BindEnv("ram_recovery_pct", "GUARDIAN_RAM_RECOVERY_PCT")
	guardianConfig.BindEnv("cpu_recovery_pct", "GUARDIAN_CPU_RECOVERY_PCT")
	guardianConfig.BindEnv("measurement_window", "GUARDIAN_MEASUREMENT_WINDOW")
	guardianConfig.BindEnv("recovery_window", "GUARDIAN_RECOVERY_WINDOW")
	guardianConfig.BindEnv("lockdown_duration", "GUARDIAN_LOCKDOWN_DURATION")
	guardianConfig.SetDefault("poll_interval", POLL_INTERVAL_DEFAULT)
	guardianConfig.SetDefault("ram_soft_pct", RAM_SOFT_DEFAULT)
	guardianConfig.SetDefault("ram_hard_pct", RAM_HARD_DEFAULT)
	guardianConfig.SetDefault("cpu_soft_pct", CPU_SOFT_DEFAULT)
	guardianConfig.SetDefault("cpu_hard_pct", CPU_HARD_DEFAULT)
	guardianConfig.SetDefault("disk_hard_pct", DISK_HARD_DEFAULT)
	guardianConfig.SetDefault("temp_hard_c", TEMP_HARD_DEFAULT)
	guardianConfig.SetDefault("ram_recovery_pct", RAM_RECOVERY_DEFAULT)
	guardianConfig.SetDefault("cpu_recovery_pct", CPU_RECOVERY_DEFAULT)
	guardianConfig.SetDefault("measurement_window", MEASUREMENT_WINDOW_DEFAULT)
	guardianConfig.SetDefault("recovery_window", RECOVERY_WINDOW_DEFAULT)
	guardianConfig.SetDefault("lockdown_duration", LOCKDOWN_DURATION_DEFAULT)

	var config Config
	err := guardianConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}

	if err := config.validateThresholds(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validateThresholds() error {
	if c.RAMRecoveryPct >= c.RAMSoftPct {
		return fmt.Errorf("ram_recovery_pct (%.1f) must be strictly below ram_soft_pct (%.1f)", c.RAMRecoveryPct, c.RAMSoftPct)
	}
	if c.CPURecoveryPct >= c.CPUSoftPct {
		return fmt.Errorf("cpu_recovery_pct (%.1f) must be strictly below cpu_soft_pct (%.1f)", c.CPURecoveryPct, c.CPUSoftPct)
	}
	if c.RAMSoftPct > c.RAMHardPct {
		return fmt.Errorf("ram_soft_pct (%.1f) must not exceed ram_hard_pct (%.1f)", c.RAMSoftPct, c.RAMHardPct)
	}
	if c.CPUSoftPct > c.CPUHardPct {
		return fmt.Errorf("cpu_soft_pct (%.1f) must not exceed cpu_hard_pct (%.1f)", c.CPUSoftPct, c.CPUHardPct)
	}
	return nil
}
