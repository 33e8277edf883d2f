package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "NEWSINGEST_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	databaseDriverEnv = "DATABASE_DRIVER"
	llmAPIKeyEnv      = "LLM_API_KEY"
	llmModelEnv       = "LLM_MODEL"
	llmProviderEnv    = "LLM_PROVIDER"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	logLevelEnv       = "LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	Crawl         CrawlConfig        `yaml:"crawl"`
	Storage       StorageConfig      `yaml:"storage"`
	Images        ImageConfig        `yaml:"images"`
	AI            AIConfig           `yaml:"ai"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Sources       []SourceConfig     `yaml:"sources"`
	NameOverrides map[string]string  `yaml:"nameOverrides"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// DatabaseConfig selects the SQL driver (postgres or sqlite) and its DSN.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// CrawlConfig bounds the crawl.
type CrawlConfig struct {
	Concurrency          int           `yaml:"concurrency"`
	DirectoryConcurrency int           `yaml:"directoryConcurrency"`
	LookbackDays         int           `yaml:"lookbackDays"`
	RefreshDays          int           `yaml:"refreshDays"`
	RetryBatch           int           `yaml:"retryBatch"`
	RequestTimeout       time.Duration `yaml:"requestTimeout"`
	RequestsPerSecond    float64       `yaml:"requestsPerSecond"`
	UserAgent            string        `yaml:"userAgent"`
}

// StorageConfig points at the directory holding icons, images and content files.
type StorageConfig struct {
	AssetsDir string `yaml:"assetsDir"`
}

// ImageConfig is the 1x bounding box for article images.
type ImageConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// AIConfig defines the model provider and enrichment limits.
type AIConfig struct {
	Provider            string                 `yaml:"provider"`
	Endpoint            string                 `yaml:"endpoint"`
	Model               string                 `yaml:"model"`
	APIKey              string                 `yaml:"apiKey"`
	Timeout             time.Duration          `yaml:"timeout"`
	MaxTokens           int                    `yaml:"maxTokens"`
	SystemPrompt        string                 `yaml:"systemPrompt"`
	BatchSize           int                    `yaml:"batchSize"`
	Concurrency         int                    `yaml:"concurrency"`
	TestMode            bool                   `yaml:"testMode"`
	RelativityThreshold int                    `yaml:"relativityThreshold"`
	RecencyDays         int                    `yaml:"recencyDays"`
	CandidateLimit      int                    `yaml:"candidateLimit"`
	RequireAI           bool                   `yaml:"requireAI"`
	Criteria            float64                `yaml:"criteria"`
	Prices              map[string]PriceConfig `yaml:"prices"`
	Taxonomy            TaxonomyConfig         `yaml:"taxonomy"`
}

// Enabled reports whether enrichment can call a model.
func (c AIConfig) Enabled() bool {
	return c.APIKey != "" && c.Model != ""
}

// PriceConfig holds per-criteria token rates.
type PriceConfig struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// TaxonomyConfig lists the closed vocabularies referenced by index in prompts.
type TaxonomyConfig struct {
	Industries []string `yaml:"industries"`
	Types      []string `yaml:"types"`
	JobTitles  []string `yaml:"jobTitles"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig enables the Prometheus textfile export written at the end of each run.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// SourceConfig seeds one source.
type SourceConfig struct {
	URL     string `yaml:"url"`
	RSS     string `yaml:"rss"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Adapter string `yaml:"adapter"`
}

// SiteConfig describes a single site adapter with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds a concrete listing page to crawl.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads .env (if present), the YAML file at path (or $NEWSINGEST_CONFIG) over the
// defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: cannot load .env: %v", err)
	}

	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.decode(raw); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays YAML onto the receiver; keys absent from raw keep their current values.
func (c *Config) decode(raw []byte) error {
	return yaml.Unmarshal(raw, c)
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Crawl.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("crawl.concurrency must be positive, got %d", c.Crawl.Concurrency))
	}
	if c.Crawl.DirectoryConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("crawl.directoryConcurrency must be positive, got %d", c.Crawl.DirectoryConcurrency))
	}
	if c.AI.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("ai.concurrency must be positive, got %d", c.AI.Concurrency))
	}
	if c.AI.Criteria <= 0 {
		errs = append(errs, fmt.Errorf("ai.criteria must be positive, got %v", c.AI.Criteria))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv(llmProviderEnv); v != "" {
		c.AI.Provider = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "data/newsingest.db"},
		Crawl: CrawlConfig{
			Concurrency:          8,
			DirectoryConcurrency: 4,
			LookbackDays:         30,
			RefreshDays:          7,
			RetryBatch:           50,
			RequestTimeout:       15 * time.Second,
			RequestsPerSecond:    2,
		},
		Storage:   StorageConfig{AssetsDir: "data/assets"},
		Images:    ImageConfig{Width: 800, Height: 450},
		Scheduler: SchedulerConfig{CronExpression: "0 */6 * * *", Timezone: defaultTimezone, location: tz},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		AI: AIConfig{
			Provider:            "openai",
			Model:               "gpt-4o-mini",
			Timeout:             60 * time.Second,
			MaxTokens:           1024,
			BatchSize:           20,
			Concurrency:         2,
			RelativityThreshold: 50,
			RecencyDays:         7,
			CandidateLimit:      200,
			Criteria:            1_000_000,
			Prices: map[string]PriceConfig{
				"gpt-4o-mini":              {Input: 0.15, Output: 0.60},
				"gpt-4o":                   {Input: 2.50, Output: 10.00},
				"claude-3-5-haiku-latest":  {Input: 0.80, Output: 4.00},
				"claude-sonnet-4-20250514": {Input: 3.00, Output: 15.00},
			},
			Taxonomy: TaxonomyConfig{
				Industries: []string{
					"Technology", "Finance", "Healthcare", "Energy", "Retail", "Manufacturing",
					"Media", "Education", "Government", "Transportation", "Real Estate", "Other",
				},
				Types: []string{
					"News", "Analysis", "Opinion", "Tutorial", "Research", "Product Announcement",
					"Interview", "Review", "Other",
				},
				JobTitles: []string{
					"Software Engineer", "Data Scientist", "Product Manager", "Designer", "Executive",
					"Marketer", "Investor", "Researcher", "Student", "Other",
				},
			},
		},
	}
}
