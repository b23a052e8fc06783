package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Target struct {
		URL           string        `yaml:"url" json:"url" jsonschema:"required,description=Address of the page listing open registrations"`
		LinkSelector  string        `yaml:"link_selector" json:"link_selector" jsonschema:"description=CSS selector matching registration links"`
		TitleSelector string        `yaml:"title_selector" json:"title_selector" jsonschema:"default=h5.headline,description=CSS selector for event titles"`
		DateSelector  string        `yaml:"date_selector" json:"date_selector" jsonschema:"description=CSS selector for event dates"`
		Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=15s,description=HTTP request timeout"`
		UserAgent     string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=regwatch/1.0,description=User agent for HTTP requests"`
	} `yaml:"target" json:"target" jsonschema:"description=Source page configuration"`

	Files struct {
		Ledger    string `yaml:"ledger" json:"ledger" jsonschema:"default=./history.json,description=Lifecycle ledger artifact path"`
		Dedup     string `yaml:"dedup" json:"dedup" jsonschema:"default=./seen.json,description=Deduplication store artifact path"`
		Feed      string `yaml:"feed" json:"feed" jsonschema:"default=./feed.xml,description=Feed document path"`
		StatsJSON string `yaml:"stats_json" json:"stats_json" jsonschema:"default=./docs/stats.json,description=Statistics artifact path"`
		StatsHTML string `yaml:"stats_html" json:"stats_html" jsonschema:"default=./docs/stats.html,description=Rendered statistics page path"`
	} `yaml:"files" json:"files" jsonschema:"description=Artifact file locations"`

	Feed struct {
		Title       string `yaml:"title" json:"title" jsonschema:"default=Open Registrations Feed,description=Feed channel title"`
		Link        string `yaml:"link" json:"link" jsonschema:"description=Feed channel link (defaults to the target address)"`
		Description string `yaml:"description" json:"description" jsonschema:"description=Feed channel description"`
		SelfURL     string `yaml:"self_url" json:"self_url" jsonschema:"description=Public address of the published feed"`
		BaseTag     string `yaml:"base_tag" json:"base_tag" jsonschema:"default=Course Event,description=Base category tag applied to every item"`
		Generator   string `yaml:"generator" json:"generator" jsonschema:"description=Feed generator string"`
		RecencyDays int    `yaml:"recency_days" json:"recency_days" jsonschema:"default=7,minimum=0,description=Days a discovered item keeps its new tag"`
	} `yaml:"feed" json:"feed" jsonschema:"description=Feed channel configuration"`

	Expiry struct {
		BufferDays int `yaml:"buffer_days" json:"buffer_days" jsonschema:"default=0,minimum=0,description=Grace period in days after a deadline before an event expires"`
	} `yaml:"expiry" json:"expiry" jsonschema:"description=Expiry evaluation configuration"`

	Notify NotifyConfig `yaml:"notify" json:"notify" jsonschema:"description=Notification channel configuration"`

	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Artifact server configuration"`
}

// NotifyConfig holds notification channels; a channel is enabled when its
// destination is set
type NotifyConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Per-call notification timeout"`

	Webhook struct {
		URL string `yaml:"url" json:"url" jsonschema:"description=Generic webhook endpoint for discovery notifications"`
	} `yaml:"webhook" json:"webhook" jsonschema:"description=Generic JSON webhook channel"`

	Email EmailConfig `yaml:"email" json:"email" jsonschema:"description=SMTP email channel"`

	Teams struct {
		URL string `yaml:"url" json:"url" jsonschema:"description=Microsoft Teams incoming webhook address"`
	} `yaml:"teams" json:"teams" jsonschema:"description=Microsoft Teams channel"`
}

// EmailConfig holds SMTP delivery settings
type EmailConfig struct {
	Host     string `yaml:"host" json:"host" jsonschema:"description=SMTP server host"`
	Port     int    `yaml:"port" json:"port" jsonschema:"default=587,description=SMTP server port"`
	From     string `yaml:"from" json:"from" jsonschema:"description=Sender address"`
	To       string `yaml:"to" json:"to" jsonschema:"description=Recipient address or comma-separated list"`
	User     string `yaml:"user" json:"user" jsonschema:"description=SMTP user"`
	Password string `yaml:"password" json:"password" jsonschema:"description=SMTP password (can use environment variable)"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// set defaults for target
	if cfg.Target.LinkSelector == "" {
		cfg.Target.LinkSelector = "div.buttons-wrap a.button, p.formUrl a, a[href*='register']"
	}
	if cfg.Target.TitleSelector == "" {
		cfg.Target.TitleSelector = "h5.headline"
	}
	if cfg.Target.DateSelector == "" {
		cfg.Target.DateSelector = "time, .date"
	}
	if cfg.Target.Timeout == 0 {
		cfg.Target.Timeout = 15 * time.Second
	}
	if cfg.Target.UserAgent == "" {
		cfg.Target.UserAgent = "regwatch/1.0"
	}

	// set defaults for artifact files
	if cfg.Files.Ledger == "" {
		cfg.Files.Ledger = "./history.json"
	}
	if cfg.Files.Dedup == "" {
		cfg.Files.Dedup = "./seen.json"
	}
	if cfg.Files.Feed == "" {
		cfg.Files.Feed = "./feed.xml"
	}
	if cfg.Files.StatsJSON == "" {
		cfg.Files.StatsJSON = "./docs/stats.json"
	}
	if cfg.Files.StatsHTML == "" {
		cfg.Files.StatsHTML = "./docs/stats.html"
	}

	// set defaults for feed channel
	if cfg.Feed.Title == "" {
		cfg.Feed.Title = "Open Registrations Feed"
	}
	if cfg.Feed.Link == "" {
		cfg.Feed.Link = cfg.Target.URL
	}
	if cfg.Feed.Description == "" {
		cfg.Feed.Description = "Automated feed of newly discovered events with open registrations"
	}
	if cfg.Feed.BaseTag == "" {
		cfg.Feed.BaseTag = "Course Event"
	}
	if cfg.Feed.Generator == "" {
		cfg.Feed.Generator = "regwatch"
	}
	if cfg.Feed.RecencyDays == 0 {
		cfg.Feed.RecencyDays = 7
	}

	// set defaults for notifications
	if cfg.Notify.Timeout == 0 {
		cfg.Notify.Timeout = 30 * time.Second
	}
	if cfg.Notify.Email.Port == 0 {
		cfg.Notify.Email.Port = 587
	}

	// set defaults for server
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate target config
	if cfg.Target.URL == "" {
		return fmt.Errorf("target.url is required")
	}
	if !strings.HasPrefix(cfg.Target.URL, "http://") && !strings.HasPrefix(cfg.Target.URL, "https://") {
		return fmt.Errorf("target.url must be an absolute http(s) address")
	}
	if cfg.Target.Timeout < time.Second {
		return fmt.Errorf("target timeout must be at least 1 second")
	}

	// validate expiry and feed windows
	if cfg.Expiry.BufferDays < 0 {
		return fmt.Errorf("expiry.buffer_days must be non-negative")
	}
	if cfg.Feed.RecencyDays < 0 {
		return fmt.Errorf("feed.recency_days must be non-negative")
	}

	// validate email channel when enabled
	if cfg.Notify.Email.Host != "" {
		if cfg.Notify.Email.From == "" || cfg.Notify.Email.To == "" {
			return fmt.Errorf("notify.email.from and notify.email.to are required when email host is set")
		}
		if cfg.Notify.Email.Port < 1 || cfg.Notify.Email.Port > 65535 {
			return fmt.Errorf("notify.email.port must be a valid port")
		}
	}

	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}

	return nil
}

// EmailEnabled reports whether the email channel is fully configured
func (c *Config) EmailEnabled() bool {
	e := c.Notify.Email
	return e.Host != "" && e.From != "" && e.To != ""
}

// RecencyWindow returns the new-tag window as a duration
func (c *Config) RecencyWindow() time.Duration {
	return time.Duration(c.Feed.RecencyDays) * 24 * time.Hour
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}
