package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config for the token agent server and CLI
type Config struct {
	Port string `validate:"required,numeric"`

	PriceBaseURL string        `validate:"required,url"`
	PriceAPIKey  string
	PriceTimeout time.Duration `validate:"gt=0,lte=60s"`

	CompletionBaseURL string        `validate:"omitempty,url"`
	CompletionAPIKey  string
	CompletionModel   string
	CompletionTimeout time.Duration `validate:"gt=0"`

	RegistryPath   string
	RegistryVerify bool

	// Gateway: both optional, empty disables.
	RedisAddr string
	RateLimit int `validate:"gte=1"`
	DBPath    string

	// Browser origins allowed on the websocket besides the server's own host.
	WSOrigins []string `validate:"dive,url"`

	LogLevel string `validate:"omitempty,oneof=debug info warn warning error"`
}

// ClassifierEnabled reports whether delegated classification is configured.
func (c *Config) ClassifierEnabled() bool {
	return c.CompletionAPIKey != ""
}

// Load reads environment variables and command-line flags (via a local
// FlagSet, skipping any -test.* flags) and validates the result. Flags win
// over environment variables.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tokenagent", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.Port, "port", envOr("PORT", "8080"), "HTTP listen port")
	fs.StringVar(&cfg.PriceBaseURL, "price-url", envOr("PRICE_BASE_URL", "https://api.coingecko.com/api/v3"), "Price API base URL")
	fs.StringVar(&cfg.PriceAPIKey, "price-key", os.Getenv("PRICE_API_KEY"), "Optional CoinGecko demo API key")
	fs.StringVar(&cfg.CompletionBaseURL, "completion-url", os.Getenv("COMPLETION_BASE_URL"), "OpenAI-compatible completion base URL")
	fs.StringVar(&cfg.CompletionAPIKey, "completion-key", os.Getenv("COMPLETION_API_KEY"), "Completion API key; empty disables classification")
	fs.StringVar(&cfg.CompletionModel, "completion-model", os.Getenv("COMPLETION_MODEL"), "Completion model")
	fs.StringVar(&cfg.RegistryPath, "registry", os.Getenv("REGISTRY_PATH"), "YAML token registry; empty uses the built-in table")
	fs.StringVar(&cfg.RedisAddr, "redis", os.Getenv("REDIS_ADDR"), "Redis address for rate limiting; empty disables")
	fs.StringVar(&cfg.DBPath, "db", os.Getenv("DB_PATH"), "sqlite API key database; empty disables auth")
	wsOrigins := fs.String("ws-origins", os.Getenv("WS_ALLOWED_ORIGINS"), "Comma-separated origins allowed on /v1/ws")
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level")

	var err error
	if cfg.PriceTimeout, err = durationEnv("PRICE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CompletionTimeout, err = durationEnv("COMPLETION_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = intEnv("RATE_LIMIT", 2); err != nil {
		return nil, err
	}
	if cfg.RegistryVerify, err = boolEnv("REGISTRY_VERIFY", false); err != nil {
		return nil, err
	}
	fs.DurationVar(&cfg.PriceTimeout, "price-timeout", cfg.PriceTimeout, "Price request timeout")
	fs.IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "Requests per second per API key")
	fs.BoolVar(&cfg.RegistryVerify, "verify-registry", cfg.RegistryVerify, "Check registry ids against the price API at startup")

	if err := fs.Parse(filterTestFlags(args)); err != nil {
		return nil, err
	}
	cfg.WSOrigins = splitList(*wsOrigins)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func filterTestFlags(args []string) []string {
	var out []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		out = append(out, arg)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
