package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		configContent := `
target:
  url: https://www.example.org/courses/?openRegistrations=yes
  link_selector: "a.button"
  title_selector: "h5.headline"
  date_selector: "time, .date"
  timeout: 20s
  user_agent: watcher-test/1.0

files:
  ledger: ./data/history.json
  dedup: ./data/seen.json
  feed: ./docs/feed.xml
  stats_json: ./docs/stats.json
  stats_html: ./docs/stats.html

feed:
  title: Example Registrations
  self_url: https://example.github.io/feed.xml
  base_tag: Workshop
  recency_days: 10

expiry:
  buffer_days: 7

notify:
  timeout: 10s
  webhook:
    url: https://hooks.example.org/x
  teams:
    url: https://outlook.office.com/webhook/y

server:
  listen: ":9090"
  timeout: 45s
`
		cfg, err := Load(writeConfig(t, configContent))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "https://www.example.org/courses/?openRegistrations=yes", cfg.Target.URL)
		assert.Equal(t, "a.button", cfg.Target.LinkSelector)
		assert.Equal(t, 20*time.Second, cfg.Target.Timeout)
		assert.Equal(t, "watcher-test/1.0", cfg.Target.UserAgent)

		assert.Equal(t, "./data/history.json", cfg.Files.Ledger)
		assert.Equal(t, "./data/seen.json", cfg.Files.Dedup)

		assert.Equal(t, "Example Registrations", cfg.Feed.Title)
		assert.Equal(t, "Workshop", cfg.Feed.BaseTag)
		assert.Equal(t, 10, cfg.Feed.RecencyDays)
		assert.Equal(t, 10*24*time.Hour, cfg.RecencyWindow())

		assert.Equal(t, 7, cfg.Expiry.BufferDays)
		assert.Equal(t, 10*time.Second, cfg.Notify.Timeout)
		assert.Equal(t, "https://hooks.example.org/x", cfg.Notify.Webhook.URL)
		assert.Equal(t, "https://outlook.office.com/webhook/y", cfg.Notify.Teams.URL)

		assert.Equal(t, ":9090", cfg.Server.Listen)
		assert.Equal(t, 45*time.Second, cfg.Server.Timeout)
	})

	t.Run("defaults", func(t *testing.T) {
		configContent := `
target:
  url: https://www.example.org/courses/
`
		cfg, err := Load(writeConfig(t, configContent))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "h5.headline", cfg.Target.TitleSelector)
		assert.Equal(t, "time, .date", cfg.Target.DateSelector)
		assert.Equal(t, 15*time.Second, cfg.Target.Timeout)
		assert.Equal(t, "regwatch/1.0", cfg.Target.UserAgent)

		assert.Equal(t, "./history.json", cfg.Files.Ledger)
		assert.Equal(t, "./seen.json", cfg.Files.Dedup)
		assert.Equal(t, "./feed.xml", cfg.Files.Feed)
		assert.Equal(t, "./docs/stats.json", cfg.Files.StatsJSON)
		assert.Equal(t, "./docs/stats.html", cfg.Files.StatsHTML)

		assert.Equal(t, "Open Registrations Feed", cfg.Feed.Title)
		assert.Equal(t, cfg.Target.URL, cfg.Feed.Link, "feed link defaults to the target")
		assert.Equal(t, "Course Event", cfg.Feed.BaseTag)
		assert.Equal(t, 7, cfg.Feed.RecencyDays)

		assert.Equal(t, 0, cfg.Expiry.BufferDays)
		assert.Equal(t, 30*time.Second, cfg.Notify.Timeout)
		assert.Equal(t, 587, cfg.Notify.Email.Port)

		assert.Equal(t, ":8080", cfg.Server.Listen)
		assert.Equal(t, 30*time.Second, cfg.Server.Timeout)
	})

	t.Run("environment expansion", func(t *testing.T) {
		t.Setenv("TEST_SMTP_PASSWORD", "s3cret")
		configContent := `
target:
  url: https://www.example.org/courses/
notify:
  email:
    host: smtp.example.org
    from: watcher@example.org
    to: alerts@example.org
    user: watcher
    password: ${TEST_SMTP_PASSWORD}
`
		cfg, err := Load(writeConfig(t, configContent))
		require.NoError(t, err)
		assert.Equal(t, "s3cret", cfg.Notify.Email.Password)
		assert.True(t, cfg.EmailEnabled())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "target:\n  url: [broken"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing target url",
			content: "files:\n  ledger: ./history.json\n",
			errMsg:  "target.url is required",
		},
		{
			name:    "relative target url",
			content: "target:\n  url: /courses/\n",
			errMsg:  "target.url must be an absolute http(s) address",
		},
		{
			name:    "tiny target timeout",
			content: "target:\n  url: https://x.example.org/\n  timeout: 100ms\n",
			errMsg:  "target timeout must be at least 1 second",
		},
		{
			name:    "negative buffer",
			content: "target:\n  url: https://x.example.org/\nexpiry:\n  buffer_days: -1\n",
			errMsg:  "expiry.buffer_days must be non-negative",
		},
		{
			name:    "incomplete email",
			content: "target:\n  url: https://x.example.org/\nnotify:\n  email:\n    host: smtp.example.org\n",
			errMsg:  "notify.email.from and notify.email.to are required",
		},
		{
			name:    "tiny server timeout",
			content: "target:\n  url: https://x.example.org/\nserver:\n  timeout: 10ms\n",
			errMsg:  "server timeout must be at least 1 second",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEmailEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.EmailEnabled())

	cfg.Notify.Email.Host = "smtp.example.org"
	assert.False(t, cfg.EmailEnabled(), "from and to still missing")

	cfg.Notify.Email.From = "watcher@example.org"
	cfg.Notify.Email.To = "alerts@example.org"
	assert.True(t, cfg.EmailEnabled())
}

func TestGetServerConfig(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Listen = ":9999"
	cfg.Server.Timeout = time.Minute

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":9999", listen)
	assert.Equal(t, time.Minute, timeout)
}
