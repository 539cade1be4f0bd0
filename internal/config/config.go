package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"MarketPulse/internal/model"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Job kinds.
const (
	KindAlert  = "alert"
	KindDigest = "digest"
)

// Publisher names.
const (
	PublisherTwitter  = "twitter"
	PublisherTelegram = "telegram"
	PublisherDryRun   = "dryrun"
)

// CronParser accepts the six-field (with seconds) specs the scheduler runs.
var CronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var knownSources = map[string]bool{"yahoo": true, "coingecko": true, "mock": true}

// Chart describes how an alert job draws its window.
type Chart struct {
	Title        string `yaml:"title"`
	DatasetLabel string `yaml:"dataset_label"`
	LabelLayout  string `yaml:"label_layout"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	Theme        string `yaml:"theme"`
}

// Job is one scheduled alert or digest.
type Job struct {
	Name      string        `yaml:"name"`
	Kind      string        `yaml:"kind"`
	Source    string        `yaml:"source"`
	Symbols   []string      `yaml:"symbols"`
	Span      model.Span    `yaml:"span"`
	Lookback  time.Duration `yaml:"lookback"`
	Threshold float64       `yaml:"threshold"`
	Template  string        `yaml:"template"`
	Render    bool          `yaml:"render"`
	Stride    int           `yaml:"stride"`
	Chart     Chart         `yaml:"chart"`
	Cron      string        `yaml:"cron"`
}

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Sources struct {
		YahooURL          string        `yaml:"yahoo_url"`
		CoinGeckoURL      string        `yaml:"coingecko_url"`
		CoinGeckoAPIKey   string        `yaml:"coingecko_api_key"`
		Concurrency       int           `yaml:"concurrency"`
		RequestsPerSecond float64       `yaml:"requests_per_second"`
		Timeout           time.Duration `yaml:"timeout"`
	} `yaml:"sources"`
	ChartURL    string `yaml:"chart_url"`
	Publisher   string `yaml:"publisher"`
	Timezone    string `yaml:"timezone"`
	Proxy       string `yaml:"proxy"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	Jobs        []Job  `yaml:"jobs"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Sources.CoinGeckoAPIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("PUBLISHER"); v != "" {
		cfg.Publisher = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("FETCH_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sources.Concurrency = n
		}
	}

	// Defaults
	if cfg.Publisher == "" {
		cfg.Publisher = PublisherTwitter
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/New_York"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Sources.Concurrency == 0 {
		cfg.Sources.Concurrency = 4
	}
	if cfg.Sources.RequestsPerSecond == 0 {
		cfg.Sources.RequestsPerSecond = 2
	}
	if cfg.Sources.Timeout == 0 {
		cfg.Sources.Timeout = 30 * time.Second
	}
	for i := range cfg.Jobs {
		applyJobDefaults(&cfg.Jobs[i])
	}

	return cfg, nil
}

func applyJobDefaults(j *Job) {
	if j.Source == "" {
		j.Source = "yahoo"
	}
	if j.Kind != KindAlert {
		return
	}
	if j.Chart.LabelLayout == "" {
		j.Chart.LabelLayout = "15:04"
	}
	if j.Chart.Width == 0 {
		j.Chart.Width = 600
	}
	if j.Chart.Height == 0 {
		j.Chart.Height = 300
	}
	if j.Chart.Theme == "" {
		j.Chart.Theme = "dark"
	}
}

// Location resolves the configured canonical timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Job returns the job with the given name.
func (c *Config) Job(name string) (Job, bool) {
	for _, j := range c.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	switch c.Publisher {
	case PublisherTwitter, PublisherDryRun:
	case PublisherTelegram:
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required")
		}
	default:
		return fmt.Errorf("unknown publisher %q", c.Publisher)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Sources.Concurrency < 0 {
		return fmt.Errorf("sources.concurrency must not be negative")
	}
	if len(c.Jobs) == 0 {
		return fmt.Errorf("at least one job is required")
	}

	seen := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if err := j.Validate(); err != nil {
			return err
		}
		if seen[j.Name] {
			return fmt.Errorf("duplicate job name %q", j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// Validate checks a single job definition.
func (j Job) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if !knownSources[j.Source] {
		return fmt.Errorf("job %s: unknown source %q", j.Name, j.Source)
	}
	if j.Span.Days <= 0 {
		return fmt.Errorf("job %s: span.days must be positive", j.Name)
	}
	if !j.Span.Granularity.Valid() {
		return fmt.Errorf("job %s: unknown granularity %q", j.Name, j.Span.Granularity)
	}
	if j.Template == "" {
		return fmt.Errorf("job %s: template is required", j.Name)
	}
	if j.Cron != "" {
		if _, err := CronParser.Parse(j.Cron); err != nil {
			return fmt.Errorf("job %s: cron %q: %w", j.Name, j.Cron, err)
		}
	}

	switch j.Kind {
	case KindAlert:
		if len(j.Symbols) != 1 {
			return fmt.Errorf("job %s: alert jobs take exactly one symbol", j.Name)
		}
		if j.Threshold < 0 {
			return fmt.Errorf("job %s: threshold must not be negative", j.Name)
		}
		if j.Lookback < 0 {
			return fmt.Errorf("job %s: lookback must not be negative", j.Name)
		}
		if j.Stride < 0 {
			return fmt.Errorf("job %s: stride must not be negative", j.Name)
		}
		if j.Render && j.Chart.Theme != "dark" && j.Chart.Theme != "light" {
			return fmt.Errorf("job %s: unknown chart theme %q", j.Name, j.Chart.Theme)
		}
	case KindDigest:
		if len(j.Symbols) == 0 {
			return fmt.Errorf("job %s: digest jobs need at least one symbol", j.Name)
		}
		if j.Span.Granularity == model.GranularityIntraday {
			return fmt.Errorf("job %s: digest jobs need a daily or weekly span", j.Name)
		}
	default:
		return fmt.Errorf("job %s: unknown kind %q", j.Name, j.Kind)
	}
	return nil
}
