package config

// Config represents the application configuration
type Config struct {
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Panel     PanelConfig     `mapstructure:"panel"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Provision ProvisionConfig `mapstructure:"provision"`
	LogLevel  string          `mapstructure:"log_level"`
}

// TelegramConfig holds the Telegram bot configuration
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// PanelConfig holds the configuration for the 3X-UI panel
type PanelConfig struct {
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	APIURL       string `mapstructure:"api_url"`
	SubURLPrefix string `mapstructure:"sub_url_prefix"`
	InboundID    int    `mapstructure:"inbound_id"`
}

// HTTPConfig holds the inbound HTTP API configuration
type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig holds the SQLite configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ProvisionConfig holds the provisioning policy configuration.
// LocalFallback controls what happens when the panel is unavailable:
// false surfaces the error to the caller, true creates a local-only
// credential with no endpoint URL. The policy is fixed at startup.
type ProvisionConfig struct {
	LocalFallback bool `mapstructure:"local_fallback"`
}
