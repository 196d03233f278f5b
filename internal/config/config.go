// Package config loads codescope settings from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	goyaml "github.com/goccy/go-yaml"

	"github.com/agentstation/codescope"
	"github.com/agentstation/codescope/llm"
)

// DefaultAPIKeyFile is read when no API key is set in the environment.
const DefaultAPIKeyFile = "/run/secrets/groq_api_key"

var validate = validator.New()

// Config holds every runtime setting.
type Config struct {
	APIKey     string `yaml:"api_key"`
	APIKeyFile string `yaml:"api_key_file"`

	Model       string  `yaml:"model" validate:"required"`
	BaseURL     string  `yaml:"base_url" validate:"required,url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	// FallbackModels are tried in order when Model fails.
	FallbackModels []string `yaml:"fallback_models" validate:"dive,required"`

	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	MaxRetries     int           `yaml:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay     time.Duration `yaml:"retry_delay" validate:"gte=0"`

	// RateLimit caps generator calls per second across all tasks; zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`

	// BreakerThreshold opens a task's circuit after that many consecutive
	// failures; zero disables the breaker.
	BreakerThreshold int           `yaml:"breaker_threshold" validate:"gte=0"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown" validate:"gte=0"`

	Degrade bool `yaml:"degrade"`
	// Workflow is the path of a workflow descriptor; empty uses the built-in one.
	Workflow string `yaml:"workflow"`

	ListenAddr    string `yaml:"listen_addr" validate:"required"`
	MaxInputBytes int    `yaml:"max_input_bytes" validate:"gt=0"`

	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=json text"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIKeyFile:      DefaultAPIKeyFile,
		Model:           llm.DefaultModel,
		BaseURL:         llm.DefaultBaseURL,
		RequestTimeout:  codescope.DefaultTimeout,
		MaxRetries:      2,
		RetryDelay:      codescope.DefaultRetryDelay,
		RateBurst:       1,
		BreakerCooldown: 30 * time.Second,
		ListenAddr:      ":8000",
		MaxInputBytes:   64 << 10,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load builds the configuration from defaults, the YAML file at path (when
// non-empty) and the process environment.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - user-provided config file
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := goyaml.UnmarshalWithOptions(data, cfg, goyaml.Strict()); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if cfg.APIKey == "" && cfg.APIKeyFile != "" {
		key, err := os.ReadFile(cfg.APIKeyFile)
		switch {
		case err == nil:
			cfg.APIKey = strings.TrimSpace(string(key))
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read API key file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("GROQ_API_KEY"); ok && v != "" {
		c.APIKey = v
	}

	strs := map[string]*string{
		"CODESCOPE_API_KEY":      &c.APIKey,
		"CODESCOPE_API_KEY_FILE": &c.APIKeyFile,
		"CODESCOPE_MODEL":        &c.Model,
		"CODESCOPE_BASE_URL":     &c.BaseURL,
		"CODESCOPE_WORKFLOW":     &c.Workflow,
		"CODESCOPE_LISTEN_ADDR":  &c.ListenAddr,
		"CODESCOPE_LOG_LEVEL":    &c.LogLevel,
		"CODESCOPE_LOG_FORMAT":   &c.LogFormat,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}

	ints := map[string]*int{
		"CODESCOPE_MAX_TOKENS":        &c.MaxTokens,
		"CODESCOPE_MAX_RETRIES":       &c.MaxRetries,
		"CODESCOPE_RATE_BURST":        &c.RateBurst,
		"CODESCOPE_BREAKER_THRESHOLD": &c.BreakerThreshold,
		"CODESCOPE_MAX_INPUT_BYTES":   &c.MaxInputBytes,
	}
	for name, field := range ints {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = n
		}
	}

	durations := map[string]*time.Duration{
		"CODESCOPE_REQUEST_TIMEOUT":  &c.RequestTimeout,
		"CODESCOPE_RETRY_DELAY":      &c.RetryDelay,
		"CODESCOPE_BREAKER_COOLDOWN": &c.BreakerCooldown,
	}
	for name, field := range durations {
		if v, ok := lookup(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field = d
		}
	}

	if v, ok := lookup("CODESCOPE_FALLBACK_MODELS"); ok && v != "" {
		c.FallbackModels = nil
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				c.FallbackModels = append(c.FallbackModels, m)
			}
		}
	}
	if v, ok := lookup("CODESCOPE_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CODESCOPE_RATE_LIMIT: %w", err)
		}
		c.RateLimit = f
	}
	if v, ok := lookup("CODESCOPE_TEMPERATURE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("CODESCOPE_TEMPERATURE: %w", err)
		}
		c.Temperature = float32(f)
	}
	if v, ok := lookup("CODESCOPE_DEGRADE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CODESCOPE_DEGRADE: %w", err)
		}
		c.Degrade = b
	}
	return nil
}

// LLM returns the client settings.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		APIKey:      c.APIKey,
		Model:       c.Model,
		BaseURL:     c.BaseURL,
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
	}
}

// Logger builds a slog logger writing to w with the configured level and format.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.LogLevel)}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LogValue implements slog.LogValuer without exposing the API key.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("api_key_set", c.APIKey != ""),
		slog.String("model", c.Model),
		slog.Any("fallback_models", c.FallbackModels),
		slog.String("base_url", c.BaseURL),
		slog.Duration("request_timeout", c.RequestTimeout),
		slog.Int("max_retries", c.MaxRetries),
		slog.Float64("rate_limit", c.RateLimit),
		slog.Bool("degrade", c.Degrade),
		slog.String("workflow", c.Workflow),
		slog.String("listen_addr", c.ListenAddr),
	)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
