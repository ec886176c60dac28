package config

import (
	"strings"

	"github.com/spf13/viper"

	apperrors "xui-sub-backend/internal/errors"
)

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	// Set default values
	v.SetDefault("log_level", "info")
	v.SetDefault("HTTP_ADDR", ":3000")
	v.SetDefault("DB_PATH", "database.sqlite")
	v.SetDefault("XUI_INBOUND_ID", 1)
	v.SetDefault("PROVISION_FALLBACK", false)

	// Define environment variables
	v.BindEnv("TG_TOKEN")
	v.BindEnv("XUI_USER")
	v.BindEnv("XUI_PASSWORD")
	v.BindEnv("XUI_API_URL")
	v.BindEnv("XUI_SUB_URL_PREFIX")
	v.BindEnv("XUI_INBOUND_ID")
	v.BindEnv("HTTP_ADDR")
	v.BindEnv("DB_PATH")
	v.BindEnv("PROVISION_FALLBACK")
	v.BindEnv("LOG_LEVEL")

	cfg := &Config{
		LogLevel: v.GetString("log_level"),
		Telegram: TelegramConfig{
			Token: strings.TrimSpace(v.GetString("TG_TOKEN")),
		},
		Panel: PanelConfig{
			User:         strings.TrimSpace(v.GetString("XUI_USER")),
			Password:     strings.TrimSpace(v.GetString("XUI_PASSWORD")),
			APIURL:       strings.TrimRight(strings.TrimSpace(v.GetString("XUI_API_URL")), "/"),
			SubURLPrefix: strings.TrimRight(strings.TrimSpace(v.GetString("XUI_SUB_URL_PREFIX")), "/"),
			InboundID:    v.GetInt("XUI_INBOUND_ID"),
		},
		HTTP: HTTPConfig{
			Addr: v.GetString("HTTP_ADDR"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("DB_PATH"),
		},
		Provision: ProvisionConfig{
			LocalFallback: v.GetBool("PROVISION_FALLBACK"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return &apperrors.ValidationError{Field: "TG_TOKEN", Message: "is required"}
	}
	if cfg.Panel.User == "" {
		return &apperrors.ValidationError{Field: "XUI_USER", Message: "is required"}
	}
	if cfg.Panel.Password == "" {
		return &apperrors.ValidationError{Field: "XUI_PASSWORD", Message: "is required"}
	}
	if cfg.Panel.APIURL == "" {
		return &apperrors.ValidationError{Field: "XUI_API_URL", Message: "is required"}
	}
	if cfg.Panel.SubURLPrefix == "" {
		return &apperrors.ValidationError{Field: "XUI_SUB_URL_PREFIX", Message: "is required"}
	}
	if cfg.Panel.InboundID <= 0 {
		return &apperrors.ValidationError{Field: "XUI_INBOUND_ID", Message: "must be a positive integer"}
	}
	return nil
}
