package metrics

import (
	"fmt"
	"time"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "metrics"

	CPU_SAMPLE_DEFAULT         = 200 * time.Millisecond
	TEMPERATURE_SENSOR_DEFAULT = "coretemp"
)

type Config struct {
	CPUSample time.Duration `mapstructure:"cpu_sample" validate:"gt=0"`
	// TemperatureSensor selects which SensorsTemperatures key to read;
	// an empty reading degrades to nil, never an error
	TemperatureSensor string `mapstructure:"temperature_sensor"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	metricsConfig := viper.Sub(keyValue)
	if metricsConfig == nil {
		metricsConfig = viper.New()
	}

	metricsConfig.BindEnv("cpu_sample", "GUARDIAN_METRICS_CPU_SAMPLE")
	metricsConfig.BindEnv("temperature_sensor", "GUARDIAN_METRICS_TEMPERATURE_SENSOR")
	metricsConfig.SetDefault("cpu_sample", CPU_SAMPLE_DEFAULT)
	metricsConfig.SetDefault("temperature_sensor", TEMPERATURE_SENSOR_DEFAULT)

	var config Config
	err := metricsConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}
