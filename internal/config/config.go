package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	configPathEnv   = "TWEETDIGEST_CONFIG"

	llmBaseURLEnv = "NEWAPI_BASE_URL"
	llmAPIKeyEnv  = "NEWAPI_API_KEY"
	llmModelEnv   = "LLM_MODEL"

	smtpHostEnv     = "SMTP_HOST"
	smtpPortEnv     = "SMTP_PORT"
	smtpUsernameEnv = "SMTP_USERNAME"
	smtpPasswordEnv = "SMTP_PASSWORD"
	emailFromEnv    = "EMAIL_FROM"
	emailToEnv      = "EMAIL_TO"
)

// Config holds high-level settings required across the application.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	LLM       LLMConfig       `yaml:"llm"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Email     EmailConfig     `yaml:"email"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PathsConfig locates the export folder and the durable artifacts.
type PathsConfig struct {
	DownloadDir  string `yaml:"downloadDir"`
	ProcessedDir string `yaml:"processedDir"`
	StateFile    string `yaml:"stateFile"`
	FeedFile     string `yaml:"feedFile"`
}

// LLMConfig defines how to contact the chat-completions endpoint.
type LLMConfig struct {
	BaseURL            string  `yaml:"baseUrl"`
	APIKey             string  `yaml:"apiKey"`
	Model              string  `yaml:"model"`
	MaxRetries         int     `yaml:"maxRetries"`
	RetryBackoffSecond float64 `yaml:"retryBackoffSeconds"`
	TimeoutSeconds     int     `yaml:"timeoutSeconds"`
}

// SMTPConfig describes the outbound mail server.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// EmailConfig carries digest addressing.
type EmailConfig struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// PipelineConfig bounds chunking, recency, and compression.
type PipelineConfig struct {
	ChunkCharLimit       int `yaml:"chunkCharLimit"`
	RecencyWindowSeconds int `yaml:"recencyWindowSeconds"`
	GroupLimit           int `yaml:"groupLimit"`
	FeedMaxEntries       int `yaml:"feedMaxEntries"`
}

// RecencyWindow returns the window as a duration.
func (p PipelineConfig) RecencyWindow() time.Duration {
	return time.Duration(p.RecencyWindowSeconds) * time.Second
}

// SchedulerConfig defines when the watch mode runs the pipeline.
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

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads YAML configuration (if present) and applies .env plus
// environment overrides. Values already set in the environment win over
// the .env file, which wins over the YAML file, which wins over defaults.
func Load() Config {
	// Best effort: absence of a .env file is the common case.
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.bindProcessedDir()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(llmBaseURLEnv); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(smtpHostEnv); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv(smtpPortEnv); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		} else {
			log.Printf("config: invalid %s=%q, keeping %d", smtpPortEnv, v, c.SMTP.Port)
		}
	}
	if v := os.Getenv(smtpUsernameEnv); v != "" {
		c.SMTP.Username = v
	}
	if v := os.Getenv(smtpPasswordEnv); v != "" {
		c.SMTP.Password = v
	}

	if v := os.Getenv(emailFromEnv); v != "" {
		c.Email.From = v
	}
	if v := os.Getenv(emailToEnv); v != "" {
		c.Email.To = v
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

func (c *Config) bindProcessedDir() {
	if c.Paths.ProcessedDir == "" {
		c.Paths.ProcessedDir = filepath.Join(c.Paths.DownloadDir, "processed")
	}
}

func mergeConfig(base, override Config) Config {
	if override.Paths.DownloadDir != "" {
		base.Paths.DownloadDir = override.Paths.DownloadDir
	}
	if override.Paths.ProcessedDir != "" {
		base.Paths.ProcessedDir = override.Paths.ProcessedDir
	}
	if override.Paths.StateFile != "" {
		base.Paths.StateFile = override.Paths.StateFile
	}
	if override.Paths.FeedFile != "" {
		base.Paths.FeedFile = override.Paths.FeedFile
	}

	if override.LLM.BaseURL != "" {
		base.LLM.BaseURL = override.LLM.BaseURL
	}
	if override.LLM.APIKey != "" {
		base.LLM.APIKey = override.LLM.APIKey
	}
	if override.LLM.Model != "" {
		base.LLM.Model = override.LLM.Model
	}
	if override.LLM.MaxRetries > 0 {
		base.LLM.MaxRetries = override.LLM.MaxRetries
	}
	if override.LLM.RetryBackoffSecond > 0 {
		base.LLM.RetryBackoffSecond = override.LLM.RetryBackoffSecond
	}
	if override.LLM.TimeoutSeconds > 0 {
		base.LLM.TimeoutSeconds = override.LLM.TimeoutSeconds
	}

	if override.SMTP.Host != "" {
		base.SMTP.Host = override.SMTP.Host
	}
	if override.SMTP.Port > 0 {
		base.SMTP.Port = override.SMTP.Port
	}
	if override.SMTP.Username != "" {
		base.SMTP.Username = override.SMTP.Username
	}
	if override.SMTP.Password != "" {
		base.SMTP.Password = override.SMTP.Password
	}

	if override.Email.From != "" {
		base.Email.From = override.Email.From
	}
	if override.Email.To != "" {
		base.Email.To = override.Email.To
	}

	if override.Pipeline.ChunkCharLimit > 0 {
		base.Pipeline.ChunkCharLimit = override.Pipeline.ChunkCharLimit
	}
	if override.Pipeline.RecencyWindowSeconds > 0 {
		base.Pipeline.RecencyWindowSeconds = override.Pipeline.RecencyWindowSeconds
	}
	if override.Pipeline.GroupLimit > 1 {
		base.Pipeline.GroupLimit = override.Pipeline.GroupLimit
	}
	if override.Pipeline.FeedMaxEntries > 0 {
		base.Pipeline.FeedMaxEntries = override.Pipeline.FeedMaxEntries
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	downloadDir := filepath.Join(home, "Downloads", "tweetdeck_exports")

	return Config{
		Paths: PathsConfig{
			DownloadDir: downloadDir,
			StateFile:   "tweet_summary_state.json",
			FeedFile:    filepath.Join("docs", "feed.json"),
		},
		LLM: LLMConfig{
			Model:              "gemini-2.5-pro",
			MaxRetries:         3,
			RetryBackoffSecond: 5,
			TimeoutSeconds:     60,
		},
		SMTP: SMTPConfig{
			Host: "smtp.qq.com",
			Port: 587,
		},
		Pipeline: PipelineConfig{
			ChunkCharLimit:       8000,
			RecencyWindowSeconds: 3600,
			GroupLimit:           5,
			FeedMaxEntries:       48,
		},
		Scheduler: SchedulerConfig{
			CronExpression: "*/10 * * * *",
			Timezone:       defaultTimezone,
			location:       tz,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
