// Package app holds process-level wiring shared by the binaries: the
// environment configuration and the logger.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the api and the worker.
type Config struct {
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	AppAddr  string `envconfig:"APP_ADDR" default:":8080"`
	RunLocal bool   `envconfig:"RUN_LOCAL" default:"false"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`
	AWSEndpointOverride string `envconfig:"AWS_ENDPOINT_OVERRIDE"`

	OrdersTable        string        `envconfig:"ORDERS_TABLE" default:"orders"`
	OrdersCompanyIndex string        `envconfig:"ORDERS_COMPANY_INDEX" default:"company_id-order_number-index"`
	SequencesTable     string        `envconfig:"SEQUENCES_TABLE" default:"sequences"`
	ProductsTable      string        `envconfig:"PRODUCTS_TABLE" default:"products"`
	IdempotencyTable   string        `envconfig:"IDEMPOTENCY_TABLE" default:"idempotency"`
	IdempotencyTTL     time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`

	OrderEventsQueueURL string `envconfig:"ORDER_EVENTS_QUEUE_URL"`

	TxMaxAttempts int           `envconfig:"TX_MAX_ATTEMPTS" default:"5"`
	TxBackoff     time.Duration `envconfig:"TX_BACKOFF" default:"25ms"`

	DefaultCurrency   string        `envconfig:"DEFAULT_CURRENCY" default:"BRL"`
	Timezone          string        `envconfig:"TIMEZONE" default:"America/Sao_Paulo"`
	OrderDateMaxAhead time.Duration `envconfig:"ORDER_DATE_MAX_AHEAD" default:"720h"`

	RetentionWindow  time.Duration `envconfig:"RETENTION_WINDOW" default:"2160h"`
	MetricsNamespace string        `envconfig:"METRICS_NAMESPACE" default:"EstoqueRapido"`

	location *time.Location
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TxMaxAttempts < 1 {
		return errors.New("TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.RetentionWindow < 24*time.Hour {
		return fmt.Errorf("RETENTION_WINDOW %s is shorter than a day", c.RetentionWindow)
	}
	if c.OrderDateMaxAhead < 0 {
		return errors.New("ORDER_DATE_MAX_AHEAD must not be negative")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	c.location = loc
	return nil
}

// Location is the business time zone that decides what "today" is.
func (c *Config) Location() *time.Location {
	if c == nil || c.location == nil {
		return time.UTC
	}
	return c.location
}

// MaxDaysAhead converts ORDER_DATE_MAX_AHEAD to whole days.
func (c *Config) MaxDaysAhead() int {
	return int(c.OrderDateMaxAhead / (24 * time.Hour))
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
