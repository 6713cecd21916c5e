package collector

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level schemawatch configuration.
type Config struct {
	// DB is the SQLite database path.
	DB string `yaml:"db"`
	// Match selects the calls worth inspecting by URL.
	Match string `yaml:"match"`
	// MaxBodyBytes caps both request and response bodies. Larger bodies
	// pass through uncaptured.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// IdleTimeout bounds how long a deferred capture waits for the
	// transport to go idle before it runs anyway.
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	// QueueSize is the scheduler backlog. With a full backlog a capture
	// starts at once on its own goroutine.
	QueueSize int `yaml:"queue_size"`
	// Workers is the number of scheduler goroutines.
	Workers int `yaml:"workers"`
	// InlineQueryFingerprints hashes the query text of calls that carry no
	// persisted-query hash or document id.
	InlineQueryFingerprints bool `yaml:"inline_query_fingerprints"`

	Retry   RetryConfig   `yaml:"retry"`
	Reload  ReloadConfig  `yaml:"reload"`
	HTTP    HTTPConfig    `yaml:"http"`
	Proxy   ProxyConfig   `yaml:"proxy"`
	Export  ExportConfig  `yaml:"export"`
	Browser BrowserConfig `yaml:"browser"`

	LogLevel string `yaml:"log_level"`
}

// RetryConfig bounds store retries.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	// Reconnect is the pause between attempts to bring the store up.
	Reconnect time.Duration `yaml:"reconnect"`
}

// ReloadConfig controls external-change polling.
type ReloadConfig struct {
	// Interval between PRAGMA data_version polls. Negative disables.
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig controls the console.
type HTTPConfig struct {
	Addr         string `yaml:"addr"`
	User         string `yaml:"user"`
	PasswordHash string `yaml:"password_hash"` // bcrypt; empty disables auth
}

// ProxyConfig controls reverse proxy mode.
type ProxyConfig struct {
	Target string `yaml:"target"`
	Addr   string `yaml:"addr"`
}

// ExportConfig controls scheduled exports.
type ExportConfig struct {
	Schedule string `yaml:"schedule"` // cron expression; empty disables
	Dir      string `yaml:"dir"`
}

// BrowserConfig controls the headless capture source.
type BrowserConfig struct {
	Remote   string        `yaml:"remote"` // CDP websocket URL; empty launches Chrome
	Headless *bool         `yaml:"headless"`
	Stealth  bool          `yaml:"stealth"`
	Pages    []string      `yaml:"pages"`
	Timeout  time.Duration `yaml:"timeout"`
	Blocking []string      `yaml:"resource_blocking"`
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	var c Config
	c.applyDefaults()
	return c
}

// LoadConfig reads a YAML configuration file, overlays the SCHEMAWATCH_*
// environment variables, then applies defaults. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("collector: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("collector: parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.DB, "SCHEMAWATCH_DB")
	set(&c.Match, "SCHEMAWATCH_MATCH")
	set(&c.HTTP.Addr, "SCHEMAWATCH_HTTP_ADDR")
	set(&c.HTTP.PasswordHash, "SCHEMAWATCH_PASSWORD_HASH")
	set(&c.Proxy.Target, "SCHEMAWATCH_PROXY_TARGET")
	set(&c.LogLevel, "SCHEMAWATCH_LOG_LEVEL")
}

func (c *Config) applyDefaults() {
	if c.DB == "" {
		c.DB = "schemawatch.db"
	}
	if c.Match == "" {
		c.Match = "(?i)graphql"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 5 << 20
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.BaseDelay <= 0 {
		c.Retry.BaseDelay = 100 * time.Millisecond
	}
	if c.Retry.Reconnect <= 0 {
		c.Retry.Reconnect = time.Second
	}
	if c.Reload.Interval == 0 {
		c.Reload.Interval = time.Second
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8787"
	}
	if c.HTTP.User == "" {
		c.HTTP.User = "schemawatch"
	}
	if c.Proxy.Addr == "" {
		c.Proxy.Addr = "127.0.0.1:8788"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = 30 * time.Second
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// IsHeadless reports the headless setting. Default: true.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}
