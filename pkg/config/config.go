package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RateWindow is the fixed window RateLimit.Max applies to.
const RateWindow = time.Minute

// Config holds all relay configuration.
type Config struct {
	Host             string          `yaml:"host"`
	Port             int             `yaml:"port"`
	LogLevel         string          `yaml:"log_level"`
	BodyLimit        int             `yaml:"body_limit"`
	MetricsNamespace string          `yaml:"metrics_namespace"`
	OpenAI           OpenAIConfig    `yaml:"openai"`
	Chat             ChatConfig      `yaml:"chat"`
	Cache            CacheConfig     `yaml:"cache"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	CORS             CORSConfig      `yaml:"cors"`
}

// OpenAIConfig defines the upstream completion provider.
type OpenAIConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChatConfig controls request shaping.
type ChatConfig struct {
	MaxHistory int `yaml:"max_history"`
	MaxTokens  int `yaml:"max_tokens"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Limit int `yaml:"limit"`
}

// RateLimitConfig caps requests per client per RateWindow. Zero disables it.
type RateLimitConfig struct {
	Max int `yaml:"max"`
}

// CORSConfig lists the origins allowed to call the relay.
type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Host:             "0.0.0.0",
		Port:             3000,
		LogLevel:         "info",
		BodyLimit:        50 * 1024,
		MetricsNamespace: "chatrelay",
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1/",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Chat: ChatConfig{
			MaxHistory: 15,
			MaxTokens:  600,
		},
		Cache: CacheConfig{
			Limit: 100,
		},
		RateLimit: RateLimitConfig{
			Max: 20,
		},
		CORS: CORSConfig{
			AllowOrigins: "*",
		},
	}
}

// Load builds a Config from defaults, an optional YAML file and the process
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile reads a YAML config file and expands environment variables.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadEnvFiles loads variables from the given .env files. Missing files are
// skipped; variables already present in the environment are not overridden.
// It returns the files that were loaded.
func LoadEnvFiles(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load env file %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}

	str("HOST", &c.Host)
	num("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	dur("OPENAI_TIMEOUT", &c.OpenAI.Timeout)
	num("MAX_HISTORY", &c.Chat.MaxHistory)
	num("MAX_TOKENS", &c.Chat.MaxTokens)
	num("CACHE_LIMIT", &c.Cache.Limit)
	num("RATE_LIMIT", &c.RateLimit.Max)
	str("CORS_ORIGINS", &c.CORS.AllowOrigins)

	return errors.Join(errs...)
}

// Validate checks the bounds the relay relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.OpenAI.Model) == "" {
		errs = append(errs, errors.New("openai.model must not be empty"))
	}
	if c.Chat.MaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_history must be > 0, got %d", c.Chat.MaxHistory))
	}
	if c.Chat.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens must be > 0, got %d", c.Chat.MaxTokens))
	}
	if c.Cache.Limit <= 0 {
		errs = append(errs, fmt.Errorf("cache.limit must be > 0, got %d", c.Cache.Limit))
	}
	if c.RateLimit.Max < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.max must be >= 0, got %d", c.RateLimit.Max))
	}
	if c.BodyLimit <= 0 {
		errs = append(errs, fmt.Errorf("body_limit must be > 0, got %d", c.BodyLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	if out.OpenAI.APIKey != "" {
		out.OpenAI.APIKey = "REDACTED"
	}
	return &out
}
