package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log          Log          `yaml:"log"`
	Server       Server       `yaml:"server"`
	OpenAI       OpenAI       `yaml:"openai"`
	News         News         `yaml:"news"`
	Conversation Conversation `yaml:"conversation"`
	Cache        Cache        `yaml:"cache"`
}

type Server struct {
	// Address to listen on
	Addr string `yaml:"addr" example:":3000"`
	// Max requests per client per minute, 0 disables rate limiting
	RateLimit int `yaml:"rate_limit" example:"60"`
}

type OpenAI struct {
	// OpenAI base url
	BaseURL string `yaml:"base_url" example:"https://api.openai.com/v1"`
	// OpenAI token, the server answers 503 while it is missing
	Token string `yaml:"token" example:"sk-proj-abc123456789DEF789ghi012JKL345mno678PQR901stu234VWX"`
	// Primary model
	Model string `yaml:"model" example:"gpt-4-turbo"`
	// Cheaper model used when the primary one misbehaves
	FallbackModel string `yaml:"fallback_model" example:"gpt-3.5-turbo"`
	// Per-call timeout
	Timeout Duration `yaml:"timeout" example:"30s"`
	// Token budgets per query complexity
	MaxTokens MaxTokens `yaml:"max_tokens"`
	Retry     Retry     `yaml:"retry"`
}

type MaxTokens struct {
	Simple  int `yaml:"simple" example:"400"`
	Complex int `yaml:"complex" example:"700"`
	News    int `yaml:"news" example:"700"`
}

type Retry struct {
	// Total attempt budget, including the first call
	Attempts int `yaml:"attempts" example:"4"`
	// Base delay before the first retry
	BaseDelay Duration `yaml:"base_delay" example:"1s"`
	// Backoff cap
	MaxDelay Duration `yaml:"max_delay" example:"10s"`
}

type News struct {
	// NewsAPI token, the server answers 503 while it is missing
	APIKey string `yaml:"api_key" example:"0123456789abcdef0123456789abcdef"`
	// NewsAPI base url
	BaseURL string `yaml:"base_url" example:"https://newsapi.org/v2"`
	// Article language filter
	Language string `yaml:"language" example:"en"`
	// Max articles per query
	PageSize int `yaml:"page_size" example:"10"`
	// Provider call timeout
	Timeout Duration `yaml:"timeout" example:"8s"`
	// Standard news cache TTL
	CacheTTL Duration `yaml:"cache_ttl" example:"30m"`
	// Breaking news cache TTL
	BreakingCacheTTL Duration `yaml:"breaking_cache_ttl" example:"5m"`
	// Breaking news poll interval, 0 disables polling
	PollInterval Duration `yaml:"poll_interval" example:"15m"`
	// Topics refreshed by the background poller
	HotTopics []string `yaml:"hot_topics"`
}

type Conversation struct {
	// Max non-system turns kept per conversation
	HistoryCap int `yaml:"history_cap" example:"20"`
	// Max conversations held in memory
	MaxConversations int `yaml:"max_conversations" example:"1000"`
	// Conversations idle longer than this are swept
	InactivityTTL Duration `yaml:"inactivity_ttl" example:"24h"`
	// Sweep period
	SweepInterval Duration `yaml:"sweep_interval" example:"1h"`
}

type Cache struct {
	// Generation response cache TTL
	ResponseTTL Duration `yaml:"response_ttl" example:"1h"`
}

type Log struct {
	// Minimal level for the console handler
	Level string `yaml:"level" example:"debug"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token" example:"1234567890:ABCdefGHIjklMNopQRstUVwxyZ-123456789"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id" example:"1001234567890"`
}

// Duration parses human-readable values like "30s" or "1h" from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return oops.Errorf("invalid duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	result.applyDefaults()

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}

// Configured reports whether both provider credentials are present. The
// process still boots without them so operators get a clear 503 instead
// of a crash loop.
func (c *Config) Configured() bool {
	return c.OpenAI.Token != "" && c.News.APIKey != ""
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4-turbo"
	}
	if c.OpenAI.FallbackModel == "" {
		c.OpenAI.FallbackModel = "gpt-3.5-turbo"
	}
	if c.OpenAI.Timeout == 0 {
		c.OpenAI.Timeout = Duration(30 * time.Second)
	}
	if c.OpenAI.MaxTokens.Simple == 0 {
		c.OpenAI.MaxTokens.Simple = 400
	}
	if c.OpenAI.MaxTokens.Complex == 0 {
		c.OpenAI.MaxTokens.Complex = 700
	}
	if c.OpenAI.MaxTokens.News == 0 {
		c.OpenAI.MaxTokens.News = 700
	}
	if c.OpenAI.Retry.Attempts == 0 {
		c.OpenAI.Retry.Attempts = 4
	}
	if c.OpenAI.Retry.BaseDelay == 0 {
		c.OpenAI.Retry.BaseDelay = Duration(time.Second)
	}
	if c.OpenAI.Retry.MaxDelay == 0 {
		c.OpenAI.Retry.MaxDelay = Duration(10 * time.Second)
	}
	if c.News.BaseURL == "" {
		c.News.BaseURL = "https://newsapi.org/v2"
	}
	if c.News.Language == "" {
		c.News.Language = "en"
	}
	if c.News.PageSize == 0 {
		c.News.PageSize = 10
	}
	if c.News.Timeout == 0 {
		c.News.Timeout = Duration(8 * time.Second)
	}
	if c.News.CacheTTL == 0 {
		c.News.CacheTTL = Duration(30 * time.Minute)
	}
	if c.News.BreakingCacheTTL == 0 {
		c.News.BreakingCacheTTL = Duration(5 * time.Minute)
	}
	if c.News.PollInterval == 0 {
		c.News.PollInterval = Duration(15 * time.Minute)
	}
	if len(c.News.HotTopics) == 0 {
		c.News.HotTopics = []string{"world", "politics", "technology", "business", "health"}
	}
	if c.Conversation.HistoryCap == 0 {
		c.Conversation.HistoryCap = 20
	}
	if c.Conversation.MaxConversations == 0 {
		c.Conversation.MaxConversations = 1000
	}
	if c.Conversation.InactivityTTL == 0 {
		c.Conversation.InactivityTTL = Duration(24 * time.Hour)
	}
	if c.Conversation.SweepInterval == 0 {
		c.Conversation.SweepInterval = Duration(time.Hour)
	}
	if c.Cache.ResponseTTL == 0 {
		c.Cache.ResponseTTL = Duration(time.Hour)
	}
}
