// Package config содержит логику чтения конфигурации сервиса бортовых продаж.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress            = "localhost:8080"
	defaultCatalogServiceAddress = "https://my-json-server.typicode.com/jdccMobile/InFlightSalesApp"
	defaultPaymentDelay          = 2 * time.Second
	defaultLogLevel              = "info"
)

// Config содержит параметры конфигурации сервиса бортовых продаж.
type Config struct {
	RunAddress            string        `env:"RUN_ADDRESS"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	CatalogServiceAddress string        `env:"CATALOG_SERVICE_ADDRESS"`
	RedisAddress          string        `env:"REDIS_ADDRESS"`
	KafkaBrokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	SessionSecret         string        `env:"SESSION_SECRET"`
	PaymentDelay          time.Duration `env:"PAYMENT_DELAY"`
	LogLevel              string        `env:"LOG_LEVEL"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Непустые переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}
	var kafkaBrokers string

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory catalog if empty")
	flag.StringVar(&cfg.CatalogServiceAddress, "c", defaultCatalogServiceAddress, "remote catalog base URL")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for cart handoff, in-memory if empty")
	flag.StringVar(&kafkaBrokers, "k", "", "comma separated kafka brokers for sale events")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie secret, random if empty")
	flag.DurationVar(&cfg.PaymentDelay, "p", defaultPaymentDelay, "simulated payment processing delay")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	flag.Parse()

	cfg.KafkaBrokers = splitList(kafkaBrokers)

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.CatalogServiceAddress != "" {
		cfg.CatalogServiceAddress = envCfg.CatalogServiceAddress
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if len(envCfg.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = splitList(strings.Join(envCfg.KafkaBrokers, ","))
	}
	if envCfg.SessionSecret != "" {
		cfg.SessionSecret = envCfg.SessionSecret
	}
	if envCfg.PaymentDelay != 0 {
		cfg.PaymentDelay = envCfg.PaymentDelay
	}
	if envCfg.LogLevel != "" {
		cfg.LogLevel = envCfg.LogLevel
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.PaymentDelay < 0 {
		return nil, fmt.Errorf("payment delay must not be negative: %s", cfg.PaymentDelay)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var res []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			res = append(res, part)
		}
	}
	return res
}
