package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Exchange       ExchangeConfig       `yaml:"exchange"`
	Telegram       TelegramConfig       `yaml:"telegram"`
	Sessions       SessionsConfig       `yaml:"sessions"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Profit         ProfitConfig         `yaml:"profit"`
}

type ExchangeConfig struct {
	APIKey         string  `yaml:"api_key"`
	APISecret      string  `yaml:"api_secret"`
	RestBaseURL    string  `yaml:"rest_base_url"`
	PublicBaseURL  string  `yaml:"public_base_url"`
	WSBaseURL      string  `yaml:"ws_base_url"`
	QuoteCurrency  string  `yaml:"quote_currency"`
	HTTPTimeoutSec int64   `yaml:"http_timeout_sec"`
	RequestsPerSec float64 `yaml:"requests_per_sec"`
	RequestsBurst  int     `yaml:"requests_burst"`
}

type TelegramConfig struct {
	BotToken          string  `yaml:"bot_token"`
	PollingTimeoutSec int     `yaml:"polling_timeout_sec"`
	AllowedUserIDs    []int64 `yaml:"allowed_user_ids"`
	Debug             bool    `yaml:"debug"`
}

type SessionsConfig struct {
	PollIntervalSec      int64   `yaml:"poll_interval_sec"`
	MaxTransientFailures int     `yaml:"max_transient_failures"`
	NotifyIntervalSec    int64   `yaml:"notify_interval_sec"`
	TerminalTTLSec       int64   `yaml:"terminal_ttl_sec"`
	MinNotionalBuy       Decimal `yaml:"min_notional_buy"`
	MinNotionalSell      Decimal `yaml:"min_notional_sell"`
}

type CircuitBreakerConfig struct {
	Enabled           bool  `yaml:"enabled"`
	MaxPlaceFailures  int   `yaml:"max_place_failures"`
	MaxCancelFailures int   `yaml:"max_cancel_failures"`
	CooldownSec       int64 `yaml:"cooldown_sec"`
}

type ProfitConfig struct {
	FeeRate         Decimal `yaml:"fee_rate"`
	DefaultNotional Decimal `yaml:"default_notional"`
}

func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return Config{}, fmt.Errorf("config must contain a single YAML document")
		}
		return Config{}, err
	}
	cfg.normalize()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Exchange.APIKey = strings.TrimSpace(c.Exchange.APIKey)
	c.Exchange.APISecret = strings.TrimSpace(c.Exchange.APISecret)
	c.Exchange.RestBaseURL = strings.TrimSpace(c.Exchange.RestBaseURL)
	c.Exchange.PublicBaseURL = strings.TrimSpace(c.Exchange.PublicBaseURL)
	c.Exchange.WSBaseURL = strings.TrimSpace(c.Exchange.WSBaseURL)
	c.Exchange.QuoteCurrency = strings.ToUpper(strings.TrimSpace(c.Exchange.QuoteCurrency))
	c.Telegram.BotToken = strings.TrimSpace(c.Telegram.BotToken)
}

func (c *Config) applyDefaults() {
	// Secrets may come from the environment instead of the file.
	if c.Exchange.APIKey == "" {
		c.Exchange.APIKey = os.Getenv("COINDCX_API_KEY")
	}
	if c.Exchange.APISecret == "" {
		c.Exchange.APISecret = os.Getenv("COINDCX_API_SECRET")
	}
	if c.Telegram.BotToken == "" {
		c.Telegram.BotToken = os.Getenv("TELEGRAM_TOKEN")
	}
	if c.Exchange.RestBaseURL == "" {
		c.Exchange.RestBaseURL = "https://api.coindcx.com"
	}
	if c.Exchange.PublicBaseURL == "" {
		c.Exchange.PublicBaseURL = "https://public.coindcx.com"
	}
	if c.Exchange.QuoteCurrency == "" {
		c.Exchange.QuoteCurrency = "INR"
	}
	if c.Exchange.HTTPTimeoutSec == 0 {
		c.Exchange.HTTPTimeoutSec = 15
	}
	if c.Exchange.RequestsPerSec == 0 {
		c.Exchange.RequestsPerSec = 8
	}
	if c.Exchange.RequestsBurst == 0 {
		c.Exchange.RequestsBurst = 4
	}
	if c.Telegram.PollingTimeoutSec == 0 {
		c.Telegram.PollingTimeoutSec = 30
	}
	if c.Sessions.PollIntervalSec == 0 {
		c.Sessions.PollIntervalSec = 2
	}
	if c.Sessions.MaxTransientFailures == 0 {
		c.Sessions.MaxTransientFailures = 10
	}
	if c.Sessions.NotifyIntervalSec == 0 {
		c.Sessions.NotifyIntervalSec = 15
	}
	if c.Sessions.TerminalTTLSec == 0 {
		c.Sessions.TerminalTTLSec = 3600
	}
	if c.Sessions.MinNotionalBuy.Cmp(decimal.Zero) == 0 {
		c.Sessions.MinNotionalBuy = Decimal{decimal.NewFromInt(50)}
	}
	if c.Sessions.MinNotionalSell.Cmp(decimal.Zero) == 0 {
		c.Sessions.MinNotionalSell = Decimal{decimal.NewFromInt(200)}
	}
	if c.CircuitBreaker.MaxPlaceFailures == 0 {
		c.CircuitBreaker.MaxPlaceFailures = 5
	}
	if c.CircuitBreaker.MaxCancelFailures == 0 {
		c.CircuitBreaker.MaxCancelFailures = 5
	}
	if c.CircuitBreaker.CooldownSec == 0 {
		c.CircuitBreaker.CooldownSec = 30
	}
	if c.Profit.FeeRate.Cmp(decimal.Zero) == 0 {
		c.Profit.FeeRate = Decimal{decimal.RequireFromString("0.001")}
	}
	if c.Profit.DefaultNotional.Cmp(decimal.Zero) == 0 {
		c.Profit.DefaultNotional = Decimal{decimal.NewFromInt(1000)}
	}
}

func (c Config) Validate() error {
	if c.Exchange.APIKey == "" || c.Exchange.APISecret == "" {
		return fmt.Errorf("exchange api_key/api_secret are required (file or COINDCX_API_KEY/COINDCX_API_SECRET)")
	}
	if err := validateURL(c.Exchange.RestBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange rest_base_url %v", err)
	}
	if err := validateURL(c.Exchange.PublicBaseURL, "http", "https"); err != nil {
		return fmt.Errorf("exchange public_base_url %v", err)
	}
	if c.Exchange.WSBaseURL != "" {
		if err := validateURL(c.Exchange.WSBaseURL, "ws", "wss"); err != nil {
			return fmt.Errorf("exchange ws_base_url %v", err)
		}
	}
	if !isValidQuote(c.Exchange.QuoteCurrency) {
		return fmt.Errorf("exchange quote_currency must match [A-Z], length 2..6")
	}
	if c.Exchange.HTTPTimeoutSec < 1 || c.Exchange.HTTPTimeoutSec > 120 {
		return fmt.Errorf("exchange http_timeout_sec must be between 1 and 120")
	}
	if c.Exchange.RequestsPerSec <= 0 {
		return fmt.Errorf("exchange requests_per_sec must be > 0")
	}
	if c.Exchange.RequestsBurst < 1 {
		return fmt.Errorf("exchange requests_burst must be >= 1")
	}
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot_token is required (file or TELEGRAM_TOKEN)")
	}
	if c.Telegram.PollingTimeoutSec < 1 || c.Telegram.PollingTimeoutSec > 120 {
		return fmt.Errorf("telegram polling_timeout_sec must be between 1 and 120")
	}
	if c.Sessions.PollIntervalSec < 1 || c.Sessions.PollIntervalSec > 60 {
		return fmt.Errorf("sessions poll_interval_sec must be between 1 and 60")
	}
	if c.Sessions.MaxTransientFailures < 1 {
		return fmt.Errorf("sessions max_transient_failures must be >= 1")
	}
	if c.Sessions.NotifyIntervalSec < 1 || c.Sessions.NotifyIntervalSec > 3600 {
		return fmt.Errorf("sessions notify_interval_sec must be between 1 and 3600")
	}
	if c.Sessions.TerminalTTLSec < 60 || c.Sessions.TerminalTTLSec > 86400 {
		return fmt.Errorf("sessions terminal_ttl_sec must be between 60 and 86400")
	}
	if c.Sessions.MinNotionalBuy.Cmp(decimal.Zero) < 0 {
		return fmt.Errorf("sessions min_notional_buy must be >= 0")
	}
	if c.Sessions.MinNotionalSell.Cmp(decimal.Zero) < 0 {
		return fmt.Errorf("sessions min_notional_sell must be >= 0")
	}
	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.MaxPlaceFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_place_failures must be >= 1")
		}
		if c.CircuitBreaker.MaxCancelFailures < 1 {
			return fmt.Errorf("circuit_breaker.max_cancel_failures must be >= 1")
		}
		if c.CircuitBreaker.CooldownSec < 1 || c.CircuitBreaker.CooldownSec > 3600 {
			return fmt.Errorf("circuit_breaker.cooldown_sec must be between 1 and 3600")
		}
	}
	if c.Profit.FeeRate.Cmp(decimal.Zero) < 0 {
		return fmt.Errorf("profit fee_rate must be >= 0")
	}
	if c.Profit.DefaultNotional.Cmp(decimal.Zero) <= 0 {
		return fmt.Errorf("profit default_notional must be > 0")
	}
	return nil
}

func isValidQuote(v string) bool {
	if len(v) < 2 || len(v) > 6 {
		return false
	}
	for _, r := range v {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func validateURL(raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("must be a valid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("must include scheme and host")
	}
	for _, s := range schemes {
		if parsed.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("scheme must be %s", strings.Join(schemes, " or "))
}
