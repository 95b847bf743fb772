package config

import "time"

// LLMConfig represents the configuration for the judgment provider
type LLMConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region         string
	ModelID        string
	MaxTokens      int
	Temperature    float32
	MaxSnippetSize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey         string
	ModelName      string
	MaxTokens      int
	Temperature    float32
	MaxSnippetSize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey         string
	ModelName      string
	MaxTokens      int
	Temperature    float32
	MaxSnippetSize int
}

// FilterConfig holds the static classification rules. Values from the
// dynamic settings store take precedence per key at classification time.
type FilterConfig struct {
	BlacklistDomains []string
	WhitelistDomains []string
	SpamKeywords     []string
	NotifyThreshold  float64
}

// RoutingConfig holds routing cache tuning and static fallback rules
type RoutingConfig struct {
	CacheTTL    time.Duration
	StaticRules []StaticRoute
}

// StaticRoute maps a mailbox address to notification targets,
// used when the routing store is unavailable or has no rules
type StaticRoute struct {
	Email   string   `mapstructure:"email"`
	Targets []string `mapstructure:"targets"`
}

// StateConfig represents the configuration for the dedup/throttle state store
type StateConfig struct {
	Type             string
	SQLitePath       string
	MySQLDSN         string
	ProcessedTTL     time.Duration
	ThrottleTTL      time.Duration
	ThrottleWindow   time.Duration
	CleanupFrequency time.Duration
}

// MongoConfig represents the configuration for the document store
type MongoConfig struct {
	URI      string
	Database string
}

// LearningConfig represents the configuration for the engagement learning engine
type LearningConfig struct {
	Enabled     bool
	WindowDays  int
	UpdateLimit int
}

// PriorConfig holds the engagement scoring weights and prior gating
type PriorConfig struct {
	MinSamples        int
	Baseline          float64
	PositiveThreshold float64
	ReadFastWithin    time.Duration
	ReadSlowWithin    time.Duration
	ScoreReadFast     float64
	ScoreReadSlow     float64
	ScoreClick        float64
}

// BatchConfig represents the configuration for batch processing
type BatchConfig struct {
	MaxWorkers int
	DryRun     bool
}

// UsageConfig holds the daily usage accounting parameters
type UsageConfig struct {
	Timezone          string
	CostInputPerMTok  float64
	CostOutputPerMTok float64
}

// GmailConfig represents the configuration for the Gmail mail source
type GmailConfig struct {
	CredentialsFile string
	MaxResults      int
}

// SlackConfig represents the configuration for Slack delivery
type SlackConfig struct {
	BotToken      string
	SigningSecret string
}

// ServerConfig represents the configuration for the HTTP server
type ServerConfig struct {
	ListenAddress string
}

// GetLLM returns the judgment provider configuration
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider: c.GetString("llm.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:         c.GetString("bedrock.region"),
		ModelID:        c.GetString("bedrock.model_id"),
		MaxTokens:      c.GetInt("bedrock.max_tokens"),
		Temperature:    float32(c.GetFloat64("bedrock.temperature")),
		MaxSnippetSize: c.GetInt("bedrock.max_snippet_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:         c.GetString("openai.api_key"),
		ModelName:      c.GetString("openai.model_name"),
		MaxTokens:      c.GetInt("openai.max_tokens"),
		Temperature:    float32(c.GetFloat64("openai.temperature")),
		MaxSnippetSize: c.GetInt("openai.max_snippet_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:         c.GetString("gemini.api_key"),
		ModelName:      c.GetString("gemini.model_name"),
		MaxTokens:      c.GetInt("gemini.max_tokens"),
		Temperature:    float32(c.GetFloat64("gemini.temperature")),
		MaxSnippetSize: c.GetInt("gemini.max_snippet_size"),
	}
}

// GetFilter returns the static filter rules configuration
func (c *Config) GetFilter() FilterConfig {
	return FilterConfig{
		BlacklistDomains: c.GetStringSlice("filter.blacklist_domains"),
		WhitelistDomains: c.GetStringSlice("filter.whitelist_domains"),
		SpamKeywords:     c.GetStringSlice("filter.spam_keywords"),
		NotifyThreshold:  c.GetFloat64("filter.notify_threshold"),
	}
}

// GetRouting returns the routing configuration
func (c *Config) GetRouting() (RoutingConfig, error) {
	ttl, err := c.GetDuration("routing.cache_ttl")
	if err != nil {
		return RoutingConfig{}, err
	}
	var rules []StaticRoute
	if err := c.UnmarshalKey("routing.static_rules", &rules); err != nil {
		return RoutingConfig{}, err
	}
	return RoutingConfig{
		CacheTTL:    ttl,
		StaticRules: rules,
	}, nil
}

// GetState returns the state store configuration
func (c *Config) GetState() (StateConfig, error) {
	processedTTL, err := c.GetDuration("state.processed_ttl")
	if err != nil {
		return StateConfig{}, err
	}
	throttleTTL, err := c.GetDuration("state.throttle_ttl")
	if err != nil {
		return StateConfig{}, err
	}
	throttleWindow, err := c.GetDuration("state.throttle_window")
	if err != nil {
		return StateConfig{}, err
	}
	cleanupFreq, err := c.GetDuration("state.cleanup_frequency")
	if err != nil {
		return StateConfig{}, err
	}
	return StateConfig{
		Type:             c.GetString("state.type"),
		SQLitePath:       c.GetString("state.sqlite_path"),
		MySQLDSN:         c.GetString("state.mysql_dsn"),
		ProcessedTTL:     processedTTL,
		ThrottleTTL:      throttleTTL,
		ThrottleWindow:   throttleWindow,
		CleanupFrequency: cleanupFreq,
	}, nil
}

// GetMongo returns the document store configuration
func (c *Config) GetMongo() MongoConfig {
	return MongoConfig{
		URI:      c.GetString("mongo.uri"),
		Database: c.GetString("mongo.database"),
	}
}

// GetLearning returns the learning engine configuration
func (c *Config) GetLearning() LearningConfig {
	return LearningConfig{
		Enabled:     c.GetBool("learning.enabled"),
		WindowDays:  c.GetInt("learning.window_days"),
		UpdateLimit: c.GetInt("learning.update_limit"),
	}
}

// GetPrior returns the prior engine configuration
func (c *Config) GetPrior() (PriorConfig, error) {
	fastWithin, err := c.GetDuration("prior.read_fast_within")
	if err != nil {
		return PriorConfig{}, err
	}
	slowWithin, err := c.GetDuration("prior.read_slow_within")
	if err != nil {
		return PriorConfig{}, err
	}
	return PriorConfig{
		MinSamples:        c.GetInt("prior.min_samples"),
		Baseline:          c.GetFloat64("prior.baseline"),
		PositiveThreshold: c.GetFloat64("prior.positive_threshold"),
		ReadFastWithin:    fastWithin,
		ReadSlowWithin:    slowWithin,
		ScoreReadFast:     c.GetFloat64("prior.score_read_fast"),
		ScoreReadSlow:     c.GetFloat64("prior.score_read_slow"),
		ScoreClick:        c.GetFloat64("prior.score_click"),
	}, nil
}

// GetBatch returns the batch processing configuration
func (c *Config) GetBatch() BatchConfig {
	return BatchConfig{
		MaxWorkers: c.GetInt("batch.max_workers"),
		DryRun:     c.GetBool("batch.dry_run"),
	}
}

// GetUsage returns the daily usage accounting configuration
func (c *Config) GetUsage() UsageConfig {
	return UsageConfig{
		Timezone:          c.GetString("usage.timezone"),
		CostInputPerMTok:  c.GetFloat64("usage.cost_input_per_mtok"),
		CostOutputPerMTok: c.GetFloat64("usage.cost_output_per_mtok"),
	}
}

// GetGmail returns the Gmail source configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile: c.GetString("gmail.credentials_file"),
		MaxResults:      c.GetInt("gmail.max_results"),
	}
}

// GetSlack returns the Slack delivery configuration
func (c *Config) GetSlack() SlackConfig {
	return SlackConfig{
		BotToken:      c.GetString("slack.bot_token"),
		SigningSecret: c.GetString("slack.signing_secret"),
	}
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() ServerConfig {
	return ServerConfig{
		ListenAddress: c.GetString("server.listen_address"),
	}
}
