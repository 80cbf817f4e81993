package backend

import (
	"fmt"
	"time"

	"github.com/sentryhost/guardian/internal/utils"
	"github.com/spf13/viper"
)

const (
	DEFAULT_CONFIG_KEY = "backend"

	BINARY_DEFAULT         = "ollama"
	SERVE_COMMAND_DEFAULT  = "serve"
	SERVER_URL_DEFAULT     = "http://localhost:11434"
	HEALTH_PATH_DEFAULT    = "/api/version"
	GENERATE_PATH_DEFAULT  = "/api/generate"
	PID_FILE_DEFAULT       = "/tmp/guardian-backend.pid"
	LOG_FILE_DEFAULT       = "/tmp/guardian-backend.log"
	SMOKE_MODEL_DEFAULT    = "llama3.2:1b"
	HEALTH_TIMEOUT_DEFAULT = 10 * time.Second
	SMOKE_TIMEOUT_DEFAULT  = 30 * time.Second
)

type Config struct {
	// Binary and ServeCommand form the canonical serve invocation used for
	// process discovery: argv[0] base name must equal Binary and the very
	// next argument must equal ServeCommand. A process merely mentioning
	// the binary somewhere in its arguments is never a match.
	Binary       string `mapstructure:"binary" validate:"required"`
	ServeCommand string `mapstructure:"serve_command" validate:"required"`

	ServerURL    string `mapstructure:"server_url" validate:"required,url"`
	HealthPath   string `mapstructure:"health_path" validate:"required"`
	GeneratePath string `mapstructure:"generate_path" validate:"required"`

	PIDFile string `mapstructure:"pid_file" validate:"required"`
	LogFile string `mapstructure:"log_file" validate:"required"`

	// SmokeModel is the model named in the optional post-restart smoke test
	SmokeModel string `mapstructure:"smoke_model"`

	HealthTimeout time.Duration `mapstructure:"health_timeout" validate:"gt=0"`
	SmokeTimeout  time.Duration `mapstructure:"smoke_timeout" validate:"gt=0"`
}

func ConfigFromViper(key *string) (Config, error) {
	var keyValue string
	if key == nil {
		keyValue = DEFAULT_CONFIG_KEY
	} else {
		keyValue = *key
	}

	backendConfig := viper.Sub(keyValue)
	if backendConfig == nil {
		backendConfig = viper.New()
	}

	backendConfig.BindEnv("binary", "GUARDIAN_BACKEND_BINARY")
	backendConfig.BindEnv("serve_command", "GUARDIAN_BACKEND_SERVE_COMMAND")
	backendConfig.BindEnv("server_url", "GUARDIAN_BACKEND_SERVER_URL")
	backendConfig.BindEnv("health_path", "GUARDIAN_BACKEND_HEALTH_PATH")
	backendConfig.BindEnv("generate_path", "GUARDIAN_BACKEND_GENERATE_PATH")
	backendConfig.BindEnv("pid_file", "GUARDIAN_BACKEND_PID_FILE")
	backendConfig.BindEnv("log_file", "GUARDIAN_BACKEND_LOG_FILE")
	backendConfig.BindEnv("smoke_model", "GUARDIAN_BACKEND_SMOKE_MODEL")
	backendConfig.SetDefault("binary", BINARY_DEFAULT)
	backendConfig.SetDefault("serve_command", SERVE_COMMAND_DEFAULT)
	backendConfig.SetDefault("server_url", SERVER_URL_DEFAULT)
	backendConfig.SetDefault("health_path", HEALTH_PATH_DEFAULT)
	backendConfig.SetDefault("generate_path", GENERATE_PATH_DEFAULT)
	backendConfig.SetDefault("pid_file", PID_FILE_DEFAULT)
	backendConfig.SetDefault("log_file", LOG_FILE_DEFAULT)
	backendConfig.SetDefault("smoke_model", SMOKE_MODEL_DEFAULT)
	backendConfig.SetDefault("health_timeout", HEALTH_TIMEOUT_DEFAULT)
	backendConfig.SetDefault("smoke_timeout", SMOKE_TIMEOUT_DEFAULT)

	var config Config
	err := backendConfig.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct, %v", err)
	}

	err = utils.ValidateStruct(&config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}
