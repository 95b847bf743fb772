package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-sentry/")
	v.AddConfigPath("$HOME/.mail-sentry")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_SENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Judgment (LLM) provider defaults
	v.SetDefault("llm.provider", "bedrock")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("bedrock.max_tokens", 512)
	v.SetDefault("bedrock.temperature", 0.0)
	v.SetDefault("bedrock.max_snippet_size", 2048)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 512)
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.max_snippet_size", 2048)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-1.5-flash")
	v.SetDefault("gemini.max_tokens", 512)
	v.SetDefault("gemini.temperature", 0.0)
	v.SetDefault("gemini.max_snippet_size", 2048)

	// Static filter rules (dynamic store values take precedence per key)
	v.SetDefault("filter.blacklist_domains", []string{})
	v.SetDefault("filter.whitelist_domains", []string{})
	v.SetDefault("filter.spam_keywords", []string{})
	v.SetDefault("filter.notify_threshold", 0.5)

	// Routing
	v.SetDefault("routing.cache_ttl", "60s")

	// Dedup/throttle state store
	v.SetDefault("state.type", "memory")
	v.SetDefault("state.sqlite_path", "/data/mail_sentry_state.db")
	v.SetDefault("state.mysql_dsn", "user:password@tcp(localhost:3306)/mail_sentry")
	v.SetDefault("state.processed_ttl", "168h")
	v.SetDefault("state.throttle_ttl", "1h")
	v.SetDefault("state.throttle_window", "10m")
	v.SetDefault("state.cleanup_frequency", "1h")

	// Document store (learning / settings / routing)
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "mail_sentry")

	// Learning / prior engine
	v.SetDefault("learning.enabled", true)
	v.SetDefault("learning.window_days", 7)
	v.SetDefault("learning.update_limit", 1000)
	v.SetDefault("prior.min_samples", 3)
	v.SetDefault("prior.baseline", 0.5)
	v.SetDefault("prior.positive_threshold", 0.7)
	v.SetDefault("prior.read_fast_within", "10m")
	v.SetDefault("prior.read_slow_within", "2h")
	v.SetDefault("prior.score_read_fast", 1.0)
	v.SetDefault("prior.score_read_slow", 0.5)
	v.SetDefault("prior.score_click", 0.2)

	// Batch processing
	v.SetDefault("batch.max_workers", 15)
	v.SetDefault("batch.dry_run", false)

	// Daily usage accounting
	v.SetDefault("usage.timezone", "Asia/Seoul")
	v.SetDefault("usage.cost_input_per_mtok", 0.80)
	v.SetDefault("usage.cost_output_per_mtok", 4.00)

	// Gmail source
	v.SetDefault("gmail.credentials_file", "")
	v.SetDefault("gmail.max_results", 50)

	// Slack delivery
	v.SetDefault("slack.bot_token", "")
	v.SetDefault("slack.signing_secret", "")

	// Server
	v.SetDefault("server.listen_address", "0.0.0.0:8080")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// UnmarshalKey decodes a configuration subtree into a struct
func (c *Config) UnmarshalKey(key string, out interface{}) error {
	return c.v.UnmarshalKey(key, out)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
