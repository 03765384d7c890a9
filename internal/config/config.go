// Package config loads and validates pagesmith configuration from the
// environment (secrets) and an optional YAML file (tuning).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/pagesmith/internal/foundation/errors"
)

// Config is the immutable runtime configuration. Credentials are injected into
// components at construction; business logic never reads the environment.
type Config struct {
	// Secrets, environment-only.
	GitHubToken  string `yaml:"-"`
	ModelAPIKey  string `yaml:"-"`
	SharedSecret string `yaml:"-"`

	// GitHub account owning the generated repositories.
	GitHubUser string `yaml:"github_user"`

	Server ServerConfig `yaml:"server"`
	Git    GitConfig    `yaml:"git"`
	Model  ModelConfig  `yaml:"model"`
	Forge  ForgeConfig  `yaml:"forge"`
	Retry  RetryConfig  `yaml:"retry"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig tunes the task intake HTTP server.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// GitConfig tunes local git operations.
type GitConfig struct {
	WorkspaceDir  string `yaml:"workspace_dir"`
	DefaultBranch string `yaml:"default_branch"`
	AuthorName    string `yaml:"author_name"`
	AuthorEmail   string `yaml:"author_email"`
}

// ModelConfig tunes the generative model client.
type ModelConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ForgeConfig tunes the GitHub REST client.
type ForgeConfig struct {
	APIURL  string        `yaml:"api_url"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RetryConfig holds the raw retry settings shared by all outbound calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Backoff      string        `yaml:"backoff"`
	Multiplier   float64       `yaml:"multiplier"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults returns a Config populated with production defaults; secrets stay empty.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Git: GitConfig{
			WorkspaceDir:  "",
			DefaultBranch: "main",
			AuthorName:    "pagesmith",
			AuthorEmail:   "pagesmith@luguber.info",
		},
		Model: ModelConfig{
			Name:    "gemini-2.5-flash",
			BaseURL: "https://generativelanguage.googleapis.com",
			Timeout: 3 * time.Minute,
		},
		Forge: ForgeConfig{
			APIURL:  "https://api.github.com",
			BaseURL: "https://github.com",
			Timeout: 45 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  4,
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
			Backoff:      string(RetryBackoffExponential),
			Multiplier:   2,
		},
		Log: LogConfig{Level: string(LogLevelInfo), Format: string(LogFormatText)},
	}
}

// Load builds a Config from defaults, an optional YAML file, and the environment.
// Environment variables win over the file; secrets come from the environment only.
func Load(path string) (*Config, error) {
	// Best effort: absent .env files are fine, the process env may be complete.
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, ferrors.ConfigError("invalid configuration file").
					WithCause(err).WithContext("path", path).Build()
			}
		} else if !os.IsNotExist(err) {
			return nil, ferrors.ConfigError("cannot read configuration file").
				WithCause(err).WithContext("path", path).Build()
		}
	}

	cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	cfg.ModelAPIKey = os.Getenv("GOOGLE_API_KEY")
	cfg.SharedSecret = os.Getenv("SHARED_SECRET")
	if v := os.Getenv("GITHUB_USER"); v != "" {
		cfg.GitHubUser = v
	}
	if v := os.Getenv("PAGESMITH_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("PAGESMITH_WORKSPACE_DIR"); v != "" {
		cfg.Git.WorkspaceDir = v
	}
	if v := os.Getenv("PAGESMITH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PAGESMITH_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("PAGESMITH_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retry.MaxAttempts = n
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required setting is present and coherent.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.GitHubToken) == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if strings.TrimSpace(c.ModelAPIKey) == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if strings.TrimSpace(c.SharedSecret) == "" {
		missing = append(missing, "SHARED_SECRET")
	}
	if strings.TrimSpace(c.GitHubUser) == "" {
		missing = append(missing, "GITHUB_USER")
	}
	if len(missing) > 0 {
		return ferrors.ConfigError(fmt.Sprintf("missing required settings: %s", strings.Join(missing, ", "))).Build()
	}
	if NormalizeRetryBackoff(c.Retry.Backoff) == "" {
		return ferrors.ConfigError("unknown retry backoff mode").
			WithContext("backoff", c.Retry.Backoff).Build()
	}
	if c.Retry.MaxAttempts < 1 {
		return ferrors.ConfigError("retry max_attempts must be at least 1").Build()
	}
	if c.Git.DefaultBranch == "" {
		return ferrors.ConfigError("git default_branch must not be empty").Build()
	}
	return nil
}

// Redacted returns a copy safe for logging: secrets replaced with asterisks.
func (c *Config) Redacted() Config {
	out := *c
	out.GitHubToken = redact(out.GitHubToken)
	out.ModelAPIKey = redact(out.ModelAPIKey)
	out.SharedSecret = redact(out.SharedSecret)
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
