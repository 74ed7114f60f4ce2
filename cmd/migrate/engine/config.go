// Package engine wires the seven migration phases (loader, graph, idmap,
// upload, rewrite, verify, report) into the single Migrate entry point, the
// way the teacher's coordinator package wires compiler, operators, and
// resolver into a single run.
package engine

import (
	"os"
	"strconv"
	"time"

	"github.com/n8n-migrator/migrator/common/httpclient"
)

// Config is the full set of knobs for one migration run. The CLI populates
// this from flags and environment variables; tests populate it directly.
type Config struct {
	SourcePath string

	TargetBaseURL string
	AuthMode      httpclient.AuthMode
	APIKey        string
	BasicUser     string
	BasicPass     string

	// TagFilter, GlobFilter, and FilterExpr narrow the set of workflows
	// loaded from SourcePath. A workflow must pass all three that are set.
	TagFilter  string
	GlobFilter string
	FilterExpr string

	DryRun              bool
	SkipExisting        bool
	StopOnError         bool
	Verify              bool
	Strict              bool
	SaveReportPath      string
	InterRequestDelayMs int
	RatePerMinute       int
	RequestTimeout      time.Duration

	LogLevel  string
	LogFormat string
}

// Validate checks cross-field constraints Load can't catch by itself and
// returns a *ConfigError describing the first problem found.
func (c Config) Validate() error {
	if c.SourcePath == "" {
		return &ConfigError{Reason: "sourcePath is required"}
	}
	if !c.DryRun && c.TargetBaseURL == "" {
		return &ConfigError{Reason: "targetBaseURL is required unless dryRun is set"}
	}
	if !c.DryRun {
		switch c.AuthMode {
		case httpclient.AuthAPIKey:
			if c.APIKey == "" {
				return &ConfigError{Reason: "apiKey is required for api-key auth"}
			}
		case httpclient.AuthBasic:
			if c.BasicUser == "" || c.BasicPass == "" {
				return &ConfigError{Reason: "basicUser and basicPass are required for basic auth"}
			}
		}
	}
	if c.InterRequestDelayMs < 0 {
		return &ConfigError{Reason: "interRequestDelayMs must not be negative"}
	}
	return nil
}

// LoadFromEnv fills in fields left at their zero value from N8N_MIGRATE_*
// environment variables, following the teacher's getEnvOrDefault pattern
// of "flags win, env fills gaps, then defaults".
func LoadFromEnv(c Config) Config {
	if c.TargetBaseURL == "" {
		c.TargetBaseURL = os.Getenv("N8N_MIGRATE_TARGET_URL")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("N8N_MIGRATE_API_KEY")
	}
	if c.BasicUser == "" {
		c.BasicUser = os.Getenv("N8N_MIGRATE_BASIC_USER")
	}
	if c.BasicPass == "" {
		c.BasicPass = os.Getenv("N8N_MIGRATE_BASIC_PASS")
	}
	if c.LogLevel == "" {
		c.LogLevel = envOrDefault("N8N_MIGRATE_LOG_LEVEL", "info")
	}
	if c.LogFormat == "" {
		c.LogFormat = envOrDefault("N8N_MIGRATE_LOG_FORMAT", "console")
	}
	if c.RatePerMinute == 0 {
		c.RatePerMinute = envOrDefaultInt("N8N_MIGRATE_RATE_PER_MINUTE", 100)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	return c
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (c Config) httpClientConfig() httpclient.Config {
	return httpclient.Config{
		BaseURL:       c.TargetBaseURL,
		AuthMode:      c.AuthMode,
		APIKey:        c.APIKey,
		BasicUser:     c.BasicUser,
		BasicPass:     c.BasicPass,
		Timeout:       c.RequestTimeout,
		RatePerMinute: c.RatePerMinute,
		MaxRetries:    3,
	}
}
