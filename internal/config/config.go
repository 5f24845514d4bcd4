// Package config содержит логику чтения конфигурации сервиса премиум-аккаунтов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const (
	defaultRunAddress = "localhost:8080"
	defaultVoteCost   = "5"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	// VoteCost задаёт стоимость одного голоса в валюте платежа.
	VoteCost decimal.Decimal `env:"VOTE_COST"`

	SessionLifetime     time.Duration `env:"SESSION_LIFETIME" envDefault:"24m"`
	SessionGCInterval   time.Duration `env:"SESSION_GC_INTERVAL" envDefault:"5m"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`

	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"15s"`

	Paypal       PaypalConfig
	GoogleWallet GoogleWalletConfig

	RedisAddress  string        `env:"REDIS_ADDRESS"`
	VotesCacheTTL time.Duration `env:"VOTES_CACHE_TTL" envDefault:"1m"`

	AdminEmail string `env:"ADMIN_EMAIL"`

	Mail MailConfig
}

// MailConfig содержит параметры писем сброса пароля.
// Без SMTPAddress письма только пишутся в журнал.
type MailConfig struct {
	SMTPAddress  string `env:"SMTP_ADDRESS"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	From         string `env:"MAIL_FROM" envDefault:"premium@localhost"`
	// ResetLinkBase задаёт адрес страницы сброса пароля, к которому добавляется ?token=.
	ResetLinkBase string        `env:"RESET_LINK_BASE" envDefault:"https://localhost:8080/premium/reset"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL" envDefault:"24h"`
}

// PaypalConfig содержит учётные данные PayPal.
type PaypalConfig struct {
	User        string `env:"PAYPAL_USER"`
	Password    string `env:"PAYPAL_PASSWORD"`
	Signature   string `env:"PAYPAL_SIGNATURE"`
	NVPEndpoint string `env:"PAYPAL_NVP_ENDPOINT" envDefault:"https://api-3t.paypal.com/nvp"`
	IPNEndpoint string `env:"PAYPAL_IPN_ENDPOINT" envDefault:"https://www.paypal.com/cgi-bin/webscr"`
}

// GoogleWalletConfig содержит учётные данные продавца Google Wallet.
type GoogleWalletConfig struct {
	MerchantID  string `env:"GOOGLE_WALLET_MERCHANT_ID"`
	MerchantKey string `env:"GOOGLE_WALLET_MERCHANT_KEY"`
	Endpoint    string `env:"GOOGLE_WALLET_ENDPOINT" envDefault:"https://checkout.google.com/api/checkout/v2/reports/Merchant/"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envVoteCost := cfg.VoteCost

	var flagVoteCost string
	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&flagVoteCost, "c", defaultVoteCost, "price of a single vote")

	flag.Parse()

	voteCost, err := decimal.NewFromString(flagVoteCost)
	if err != nil {
		return nil, fmt.Errorf("parse vote cost %q: %w", flagVoteCost, err)
	}
	cfg.VoteCost = voteCost

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if _, ok := os.LookupEnv("VOTE_COST"); ok {
		cfg.VoteCost = envVoteCost
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !c.VoteCost.IsPositive() {
		return errors.New("vote cost must be positive")
	}
	if c.SessionLifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.GatewayTimeout <= 0 {
		return errors.New("gateway timeout must be positive")
	}
	if c.Mail.ResetTokenTTL <= 0 {
		return errors.New("reset token ttl must be positive")
	}
	return nil
}
