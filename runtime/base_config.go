package runtime

// BaseConfig defines the environment variables needed by all services
type BaseConfig struct {
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ServiceName string `envconfig:"SERVICE_NAME" required:"true"`
}
