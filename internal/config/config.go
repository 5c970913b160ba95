package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type Config struct {
	ServiceName string `mapstructure:"SERVICE_NAME"`
	Env         string `mapstructure:"ENV"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	LogFile     string `mapstructure:"LOG_FILE"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	OTLPEndpoint     string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure     bool    `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	TraceSampleRatio float64 `mapstructure:"OTEL_TRACES_SAMPLER_RATIO"`

	StoreDriver string `mapstructure:"STORE_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	Migrate     bool   `mapstructure:"DATABASE_MIGRATE"`

	RedisAddr    string        `mapstructure:"REDIS_ADDR"`
	RateCacheTTL time.Duration `mapstructure:"RATE_CACHE_TTL"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"KAFKA_TOPIC"`

	CarrierRatesURL string `mapstructure:"CARRIER_RATES_URL"`
	PaymentBaseURL  string `mapstructure:"PAYMENT_BASE_URL"`

	CatalogTimeout time.Duration `mapstructure:"CATALOG_TIMEOUT"`
	RatesTimeout   time.Duration `mapstructure:"RATES_TIMEOUT"`
	RulesTimeout   time.Duration `mapstructure:"RULES_TIMEOUT"`
	StockTimeout   time.Duration `mapstructure:"STOCK_TIMEOUT"`
	TxTimeout      time.Duration `mapstructure:"TX_TIMEOUT"`
	GatewayTimeout time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVICE_NAME": "settlement",
	"ENV":          "dev",
	"LOG_LEVEL":    "info",
	"LOG_FILE":     "",
	"HTTP_ADDR":    ":8080",

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_EXPORTER_OTLP_INSECURE": true,
	"OTEL_TRACES_SAMPLER_RATIO":   1.0,

	"STORE_DRIVER":      DriverMemory,
	"DATABASE_URL":      "",
	"DATABASE_MIGRATE":  false,
	"REDIS_ADDR":        "",
	"RATE_CACHE_TTL":    "1m",
	"KAFKA_BROKERS":     "",
	"KAFKA_TOPIC":       "settlement.events",
	"CARRIER_RATES_URL": "",
	"PAYMENT_BASE_URL":  "https://pay.example.com",
	"CATALOG_TIMEOUT":   "2s",
	"RATES_TIMEOUT":     "3s",
	"RULES_TIMEOUT":     "2s",
	"STOCK_TIMEOUT":     "2s",
	"TX_TIMEOUT":        "10s",
	"GATEWAY_TIMEOUT":   "5s",
}

// Load reads defaults, then the optional file named by CONFIG_FILE, then the
// environment. Later sources win.
func Load() (*Config, error) {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACES_SAMPLER_RATIO %v is outside [0, 1]", c.TraceSampleRatio))
	}
	for name, d := range map[string]time.Duration{
		"CATALOG_TIMEOUT": c.CatalogTimeout,
		"RATES_TIMEOUT":   c.RatesTimeout,
		"RULES_TIMEOUT":   c.RulesTimeout,
		"STOCK_TIMEOUT":   c.StockTimeout,
		"TX_TIMEOUT":      c.TxTimeout,
		"GATEWAY_TIMEOUT": c.GatewayTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
