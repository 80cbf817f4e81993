package brownout

import (
	"fmt"
	"time"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "brownout"

	PRIMARY_MODEL_DEFAULT   = "llama3.1:70b"
	DEGRADED_MODEL_DEFAULT  = "llama3.2:3b"
	NORMAL_CONTEXT_DEFAULT  = 32768
	REDUCED_CONTEXT_DEFAULT = 4096
	NORMAL_TOP_K_DEFAULT    = 10
	REDUCED_TOP_K_DEFAULT   = 3
	CALL_TIMEOUT_DEFAULT    = 5 * time.Second
)

type Config struct {
	PrimaryModel  string `mapstructure:"primary_model" validate:"required"`
	DegradedModel string `mapstructure:"degraded_model" validate:"required"`

	NormalContext  int `mapstructure:"normal_context" validate:"gt=0"`
	ReducedContext int `mapstructure:"reduced_context" validate:"gt=0"`
	NormalTopK     int `mapstructure:"normal_top_k" validate:"gt=0"`
	ReducedTopK    int `mapstructure:"reduced_top_k" validate:"gt=0"`

	// ModerateTools are disabled at MODERATE; HeavyTools at HEAVY.
	// HeavyTools must be a strict superset of ModerateTools so that
	// escalation only ever removes capability.
	ModerateTools []string `mapstructure:"moderate_tools"`
	HeavyTools    []string `mapstructure:"heavy_tools"`

	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	brownoutConfig := viper.Sub(keyValue)
	if brownoutConfig == nil {
		brownoutConfig = viper.New()
	}

	brownoutConfig.BindEnv("primary_model", "GUARDIAN_BROWNOUT_PRIMARY_MODEL")
	brownoutConfig.BindEnv("degraded_model", "GUARDIAN_BROWNOUT_DEGRADED_MODEL")
	brownoutConfig.SetDefault("primary_model", PRIMARY_MODEL_DEFAULT)
	brownoutConfig.SetDefault("degraded_model", DEGRADED_MODEL_DEFAULT)
	brownoutConfig.SetDefault("normal_context", NORMAL_CONTEXT_DEFAULT)
	brownoutConfig.SetDefault("reduced_context", REDUCED_CONTEXT_DEFAULT)
	brownoutConfig.SetDefault("normal_top_k", NORMAL_TOP_K_DEFAULT)
	brownoutConfig.SetDefault("reduced_top_k", REDUCED_TOP_K_DEFAULT)
	brownoutConfig.SetDefault("moderate_tools", []string{"code_interpreter", "web_search"})
	brownoutConfig.SetDefault("heavy_tools", []string{"code_interpreter", "web_search", "file_io", "shell"})
	brownoutConfig.SetDefault("call_timeout", CALL_TIMEOUT_DEFAULT)

	var config Config
	err := brownoutConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}

	if err := config.validateToolSets(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// validateToolSets enforces HeavyTools ⊇ ModerateTools at load time, so
// the invariant holds for every activation thereafter.
func (c Config) validateToolSets() error {
	heavy := make(map[string]bool, len(c.HeavyTools))
	for _, t := range c.HeavyTools {
		heavy[t] = true
	}
	for _, t := range c.ModerateTools {
		if !heavy[t] {
			return fmt.Errorf("heavy_tools must contain every moderate tool, missing %q", t)
		}
	}
	return nil
}
