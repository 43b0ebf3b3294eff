package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WABOT_GATEWAY_API_KEY.
const EnvPrefix = "WABOT"

type Configuration struct {
	ApiPort  string `mapstructure:"api_port" json:"api_port" validate:"required,numeric"`
	LogPath  string `mapstructure:"log_path" json:"log_path"`
	LogLevel string `mapstructure:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogMode  string `mapstructure:"log_mode" json:"log_mode" validate:"oneof=development production"`

	Database string `mapstructure:"database" json:"database" validate:"oneof=sqlite3 postgres postgresql"` // "sqlite3" ou "postgres"
	DbHost   string `mapstructure:"db_host" json:"db_host"`
	DbPort   string `mapstructure:"db_port" json:"db_port"`
	DbUser   string `mapstructure:"db_user" json:"db_user"`
	DbName   string `mapstructure:"db_name" json:"db_name"`
	DbPass   string `mapstructure:"db_pass" json:"db_pass"`
	DbPath   string `mapstructure:"db_path" json:"db_path"`
	DbLog    bool   `mapstructure:"db_log" json:"db_log"`

	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Webhook   WebhookConfig   `mapstructure:"webhook" json:"webhook"`
	Lifecycle LifecycleConfig `mapstructure:"lifecycle" json:"lifecycle"`
	Broker    BrokerConfig    `mapstructure:"broker" json:"broker"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper" json:"sweeper"`
}

// GatewayConfig points at the Evolution API server that owns the WhatsApp sessions.
type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	ApiKey         string `mapstructure:"api_key" json:"api_key"`
	Integration    string `mapstructure:"integration" json:"integration"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" json:"timeout_seconds" validate:"min=1"`
}

type WebhookConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`
	Path    string `mapstructure:"path" json:"path" validate:"startswith=/"`
	Token   string `mapstructure:"token" json:"token"`
}

// LifecycleConfig bounds the QR acquisition loop and the forced reset.
type LifecycleConfig struct {
	MaxAttempts     int `mapstructure:"max_attempts" json:"max_attempts" validate:"min=1,max=50"`
	ShortAttempts   int `mapstructure:"short_attempts" json:"short_attempts" validate:"min=0"`
	ShortDelayMs    int `mapstructure:"short_delay_ms" json:"short_delay_ms" validate:"min=0"`
	LongDelayMs     int `mapstructure:"long_delay_ms" json:"long_delay_ms" validate:"min=0"`
	ResetGraceMs    int `mapstructure:"reset_grace_ms" json:"reset_grace_ms" validate:"min=0"`
	RecreateGraceMs int `mapstructure:"recreate_grace_ms" json:"recreate_grace_ms" validate:"min=0"`
	QRTTLSeconds    int `mapstructure:"qr_ttl_seconds" json:"qr_ttl_seconds" validate:"min=1"`
}

type BrokerConfig struct {
	Enabled  bool   `mapstructure:"enabled" json:"enabled"`
	URL      string `mapstructure:"url" json:"url" validate:"required_if=Enabled true"`
	Exchange string `mapstructure:"exchange" json:"exchange" validate:"required_if=Enabled true"`
}

type SweeperConfig struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	Spec    string `mapstructure:"spec" json:"spec" validate:"required_if=Enabled true"`
}

func (l LifecycleConfig) ShortDelay() time.Duration {
	return time.Duration(l.ShortDelayMs) * time.Millisecond
}

func (l LifecycleConfig) LongDelay() time.Duration {
	return time.Duration(l.LongDelayMs) * time.Millisecond
}

func (l LifecycleConfig) ResetGrace() time.Duration {
	return time.Duration(l.ResetGraceMs) * time.Millisecond
}

func (l LifecycleConfig) RecreateGrace() time.Duration {
	return time.Duration(l.RecreateGraceMs) * time.Millisecond
}

func (l LifecycleConfig) QRTTL() time.Duration {
	return time.Duration(l.QRTTLSeconds) * time.Second
}

func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// WebhookURL is the callback address handed to the gateway on instance creation.
func (w WebhookConfig) WebhookURL() string {
	url := strings.TrimRight(w.BaseURL, "/") + w.Path
	if w.Token != "" {
		url += "?token=" + w.Token
	}
	return url
}

// RequireGateway reports whether the gateway and callback settings needed by serve are present.
func (c Configuration) RequireGateway() error {
	var missing []string
	if strings.TrimSpace(c.Gateway.BaseURL) == "" {
		missing = append(missing, "gateway.base_url")
	}
	if strings.TrimSpace(c.Gateway.ApiKey) == "" {
		missing = append(missing, "gateway.api_key")
	}
	if strings.TrimSpace(c.Webhook.BaseURL) == "" {
		missing = append(missing, "webhook.base_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_port", "8080")
	v.SetDefault("log_path", "logs/server.log")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_mode", "development")

	v.SetDefault("database", "sqlite3")
	v.SetDefault("db_host", "")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_user", "")
	v.SetDefault("db_name", "")
	v.SetDefault("db_pass", "")
	v.SetDefault("db_path", "db/database.db")
	v.SetDefault("db_log", false)

	v.SetDefault("gateway.base_url", "")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.integration", "WHATSAPP-BAILEYS")
	v.SetDefault("gateway.timeout_seconds", 30)

	v.SetDefault("webhook.base_url", "")
	v.SetDefault("webhook.path", "/api/whatsapp/webhook")
	v.SetDefault("webhook.token", "")

	v.SetDefault("lifecycle.max_attempts", 10)
	v.SetDefault("lifecycle.short_attempts", 2)
	v.SetDefault("lifecycle.short_delay_ms", 1500)
	v.SetDefault("lifecycle.long_delay_ms", 3000)
	v.SetDefault("lifecycle.reset_grace_ms", 5000)
	v.SetDefault("lifecycle.recreate_grace_ms", 2000)
	v.SetDefault("lifecycle.qr_ttl_seconds", 300)

	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.url", "")
	v.SetDefault("broker.exchange", "whatsapp.events")

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.spec", "@every 1m")
}

// Load reads the JSON configuration at path (optional when empty or missing),
// applies WABOT_* environment overrides and validates the result.
func Load(path string) (Configuration, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// a missing file is fine, defaults and env still apply
	if _, err := os.Stat(path); path != "" && err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Configuration{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return Configuration{}, fmt.Errorf("parse config: %w", err)
	}

	if err := validator.New().Struct(c); err != nil {
		return Configuration{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Get loads the configuration or stops the process, mirroring how main consumes it.
func Get(path string) Configuration {
	c, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return c
}
