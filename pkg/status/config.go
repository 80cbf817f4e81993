package status

import (
	"fmt"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "status"

	LISTEN_ADDR_DEFAULT = "127.0.0.1:9090"
)

type Config struct {
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	statusConfig := viper.Sub(keyValue)
	if statusConfig == nil {
		statusConfig = viper.New()
	}

	statusConfig.BindEnv("listen_addr", "GUARDIAN_STATUS_LISTEN_ADDR")
	statusConfig.SetDefault("listen_addr", LISTEN_ADDR_DEFAULT)

	var config Config
	err := statusConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}
