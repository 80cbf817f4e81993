package serving

import (
	"fmt"
	"time"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "serving"

	SERVER_URL_DEFAULT   = "http://localhost:8080"
	CALL_TIMEOUT_DEFAULT = 5 * time.Second
)

type Config struct {
	ServerURL   string        `mapstructure:"server_url" validate:"required,url"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	servingConfig := viper.Sub(keyValue)
	if servingConfig == nil {
		servingConfig = viper.New()
	}

	servingConfig.BindEnv("server_url", "GUARDIAN_SERVING_SERVER_URL")
	servingConfig.BindEnv("call_timeout", "GUARDIAN_SERVING_CALL_TIMEOUT")
	servingConfig.SetDefault("server_url", SERVER_URL_DEFAULT)
	servingConfig.SetDefault("call_timeout", CALL_TIMEOUT_DEFAULT)

	var config Config
	err := servingConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) URLs() ServingURLs {
	return ServingURLs{ServerURL: c.ServerURL}
}
