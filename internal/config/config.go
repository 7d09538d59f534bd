// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type RateLimitConfig struct {
	Commands int           `yaml:"commands"` // per user and command inside Window
	Window   time.Duration `yaml:"window"`
}

type BotConfig struct {
	Token          string          `yaml:"token"`
	Username       string          `yaml:"username"`
	Language       string          `yaml:"language"`
	Workers        int             `yaml:"workers"` // polling workers
	PollTimeout    int             `yaml:"poll_timeout"`
	AdminIDs       []int64         `yaml:"admin_ids"`
	BannedIDs      []int64         `yaml:"banned_ids"`
	UntouchableIDs []int64         `yaml:"untouchable_ids"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port      int    `yaml:"port"` // 0 disables the admin API
	JWTSecret string `yaml:"jwt_secret"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver     string        `yaml:"driver"` // postgres|sqlite
	URL        string        `yaml:"url"`
	SQLitePath string        `yaml:"sqlite_path"`
	MaxConns   int32         `yaml:"max_conns"`
	MaxWait    time.Duration `yaml:"max_wait"` // startup connect retry budget
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables rate limiting and the heresy cache layer
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	GeminiKey     string `yaml:"gemini_key"`
	GeminiURL     string `yaml:"gemini_url"`
	OpenAIKey     string `yaml:"openai_key"`
	OpenAIBaseURL string `yaml:"openai_base_url"`

	DefaultModel   string            `yaml:"default_model"`
	FallbackModel  string            `yaml:"fallback_model"`
	SummarizeModel string            `yaml:"summarize_model"`
	Models         map[string]string `yaml:"models"` // job kind -> model
	// ModelProviders pins models the name-based routing would send elsewhere.
	ModelProviders map[string]string `yaml:"model_providers"`

	ConcurrentLimit  int `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxContextTokens int `yaml:"max_context_tokens"`
	MaxOutputTokens  int `yaml:"max_output_tokens"`
}

type QueueConfig struct {
	MaxConcurrentJobs int           `yaml:"max_concurrent_jobs"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxAttempts       int           `yaml:"max_attempts"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
}

type GuardConfig struct {
	Threshold                     float64 `yaml:"threshold"`
	ContainmentThreshold          float64 `yaml:"containment_threshold"` // 0 means threshold
	MinPromptTokensForContainment int     `yaml:"min_prompt_tokens_for_containment"`
	MinSubstringLength            int     `yaml:"min_substring_length"`
	PageSize                      int     `yaml:"page_size"`
	MaxScan                       int     `yaml:"max_scan"`
}

type OpsLogConfig struct {
	ChannelID   string `yaml:"channel_id"` // 123, -100123, @name or name
	SentryDSN   string `yaml:"sentry_dsn"`
	Environment string `yaml:"environment"`
}

type HeresyConfig struct {
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Lookback    time.Duration `yaml:"lookback"`
	MinMessages int           `yaml:"min_messages"`
	MinLength   int           `yaml:"min_length"`
	MaxMessages int           `yaml:"max_messages"`
}

type SchedulerConfig struct {
	QueueStatsInterval time.Duration `yaml:"queue_stats_interval"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	AI        AIConfig        `yaml:"ai"`
	Queue     QueueConfig     `yaml:"queue"`
	Guard     GuardConfig     `yaml:"guard"`
	OpsLog    OpsLogConfig    `yaml:"opslog"`
	Heresy    HeresyConfig    `yaml:"heresy"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// envOverrides maps secret environment variables onto config fields.
var envOverrides = []struct {
	name string
	dst  func(*Config) *string
}{
	{"TELEGRAM_BOT_TOKEN", func(c *Config) *string { return &c.Bot.Token }},
	{"DATABASE_URL", func(c *Config) *string { return &c.Database.URL }},
	{"GEMINI_API_KEY", func(c *Config) *string { return &c.AI.GeminiKey }},
	{"OPENAI_API_KEY", func(c *Config) *string { return &c.AI.OpenAIKey }},
	{"ADMIN_JWT_SECRET", func(c *Config) *string { return &c.Admin.JWTSecret }},
	{"SENTRY_DSN", func(c *Config) *string { return &c.OpsLog.SentryDSN }},
}

// LoadConfig reads the yaml file at path, applies environment overrides and
// defaults, and validates the result.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes yaml bytes and runs the same steps as LoadConfig.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.name)); v != "" {
			*o.dst(&cfg) = v
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Bot.PollTimeout <= 0 {
		cfg.Bot.PollTimeout = 60
	}
	if cfg.Bot.Language == "" {
		cfg.Bot.Language = "es"
	}
	if cfg.Bot.RateLimit.Commands <= 0 {
		cfg.Bot.RateLimit.Commands = 20
	}
	if cfg.Bot.RateLimit.Window <= 0 {
		cfg.Bot.RateLimit.Window = time.Minute
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPostgres
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "veritheo.db"
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.AI.DefaultModel == "" {
		cfg.AI.DefaultModel = "gemini-2.5-flash"
	}
	if cfg.AI.SummarizeModel == "" {
		cfg.AI.SummarizeModel = cfg.AI.DefaultModel
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 16
	}
	if cfg.AI.MaxContextTokens <= 0 {
		cfg.AI.MaxContextTokens = 8000
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 2048
	}

	if cfg.Queue.MaxConcurrentJobs <= 0 {
		cfg.Queue.MaxConcurrentJobs = 3
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 500 * time.Millisecond
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = 3
	}
	if cfg.Queue.JobTimeout <= 0 {
		cfg.Queue.JobTimeout = 3 * time.Minute
	}

	if cfg.Guard.Threshold <= 0 {
		cfg.Guard.Threshold = 0.85
	}
	if cfg.Guard.MinPromptTokensForContainment <= 0 {
		cfg.Guard.MinPromptTokensForContainment = 8
	}
	if cfg.Guard.MinSubstringLength <= 0 {
		cfg.Guard.MinSubstringLength = 40
	}
	if cfg.Guard.PageSize <= 0 {
		cfg.Guard.PageSize = 200
	}
	if cfg.Guard.MaxScan <= 0 {
		cfg.Guard.MaxScan = 2000
	}

	if cfg.Heresy.CacheTTL <= 0 {
		cfg.Heresy.CacheTTL = 30 * 24 * time.Hour
	}
	if cfg.Heresy.Lookback <= 0 {
		cfg.Heresy.Lookback = 365 * 24 * time.Hour
	}
	if cfg.Heresy.MinMessages <= 0 {
		cfg.Heresy.MinMessages = 3
	}
	if cfg.Heresy.MinLength <= 0 {
		cfg.Heresy.MinLength = 100
	}
	if cfg.Heresy.MaxMessages <= 0 {
		cfg.Heresy.MaxMessages = 50
	}
	if cfg.Scheduler.QueueStatsInterval <= 0 {
		cfg.Scheduler.QueueStatsInterval = 15 * time.Second
	}
	if cfg.OpsLog.Environment == "" {
		cfg.OpsLog.Environment = "production"
	}
}

// Validate is the minimal validation run by LoadConfig.
func (cfg *Config) Validate() error {
	if cfg.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	switch cfg.Database.Driver {
	case DriverPostgres:
		if cfg.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
	}
	if cfg.Admin.Port > 0 && cfg.Admin.JWTSecret == "" {
		return errors.New("admin.jwt_secret is required when the admin API is enabled")
	}
	if cfg.Guard.Threshold > 1 || cfg.Guard.ContainmentThreshold < 0 || cfg.Guard.ContainmentThreshold > 1 {
		return errors.New("guard thresholds must be within [0, 1]")
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
