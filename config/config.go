package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Payment  PaymentConfig
	Provider ProviderConfig
	AMQP     AMQPConfig
}

type ServerConfig struct {
	Port         string        `envconfig:"SERVER_PORT" default:"8099"`
	Env          string        `envconfig:"SERVER_ENV" default:"development"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"10s"`
}

type DatabaseConfig struct {
	DSN             string        `envconfig:"DB_DSN" default:"vibe:vibe@tcp(localhost:3306)/vibe_booking?charset=utf8mb4&parseTime=True&loc=Local"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"100"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"1h"`
}

type JWTConfig struct {
	Secret string        `envconfig:"JWT_SECRET" default:"change-me-in-production"`
	Expiry time.Duration `envconfig:"JWT_EXPIRY" default:"1h"`
	Issuer string        `envconfig:"JWT_ISSUER" default:"vibe-booking"`
}

type PaymentConfig struct {
	// WebhookSecret signs/verifies provider notifications (HMAC-SHA256).
	WebhookSecret string `envconfig:"PAYMENT_WEBHOOK_SECRET" default:"change-me-webhook"`
	// ProviderTimeout bounds every outbound provider call; a call that
	// exceeds it is settled locally as a failed attempt.
	ProviderTimeout time.Duration `envconfig:"PAYMENT_PROVIDER_TIMEOUT" default:"30s"`
	// OrderExpiry is how long an uncaptured order stays capturable.
	OrderExpiry time.Duration `envconfig:"PAYMENT_ORDER_EXPIRY" default:"30m"`
}

type ProviderConfig struct {
	SyncPayBaseURL  string `envconfig:"SYNCPAY_BASE_URL" default:"https://api.syncpay.example.com"`
	SyncPayAPIKey   string `envconfig:"SYNCPAY_API_KEY" default:""`
	OrderPayBaseURL string `envconfig:"ORDERPAY_BASE_URL" default:"https://api.orderpay.example.com"`
	OrderPayAPIKey  string `envconfig:"ORDERPAY_API_KEY" default:""`
	VaultBaseURL    string `envconfig:"VAULT_BASE_URL" default:"https://api.vault.example.com"`
	VaultAPIKey     string `envconfig:"VAULT_API_KEY" default:""`
	// UseStub routes every provider to the deterministic stub (development).
	UseStub bool `envconfig:"PROVIDER_USE_STUB" default:"true"`
}

type AMQPConfig struct {
	URL      string `envconfig:"AMQP_URL" default:""`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"payments"`
}

func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}
