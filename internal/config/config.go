package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all service settings
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// KV store (Redis) configuration
	KV KVConfig `yaml:"kv"`

	// GitHub configuration
	GitHub GitHubConfig `yaml:"github"`

	// Cron configuration
	Cron CronConfig `yaml:"cron"`

	// Agent tool adapter configuration
	Agent AgentConfig `yaml:"agent"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// RequestTimeout bounds every handler; GraphTimeout bounds graph builds
	RequestTimeout time.Duration `yaml:"request_timeout"`
	GraphTimeout   time.Duration `yaml:"graph_timeout"`
	// StrictIdentity rejects anonymous identities on write paths
	StrictIdentity bool `yaml:"strict_identity"`
	Debug          bool `yaml:"debug"`
}

type KVConfig struct {
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Database int    `yaml:"database"`
}

type GitHubConfig struct {
	Token     string `yaml:"token"`
	RateLimit int    `yaml:"rate_limit"` // Requests per second
}

type CronConfig struct {
	Secret string `yaml:"secret"`
}

type AgentConfig struct {
	// InternalURL is where the tool adapter sends its internal calls;
	// empty means the server's own address.
	InternalURL string `yaml:"internal_url"`
	// CanonicalRepoURL, when set, overrides the repo_url argument on every
	// tool call (deployment narrowing to a single repository).
	CanonicalRepoURL string `yaml:"canonical_repo_url"`
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 5 * time.Second,
			GraphTimeout:   30 * time.Second,
		},
		KV: KVConfig{
			Database: 0,
		},
		GitHub: GitHubConfig{
			RateLimit: 10, // 10 requests per second
		},
	}
}

// Load loads configuration from environment, optionally seeded from .env
// files discovered in the working directory or its parents.
func Load() (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	cfg := Default()

	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()

	if addr := v.GetString("ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if v.IsSet("STRICT_IDENTITY") {
		cfg.Server.StrictIdentity = v.GetBool("STRICT_IDENTITY")
	}
	if v.IsSet("DEBUG") {
		cfg.Server.Debug = v.GetBool("DEBUG")
	}
	if timeout := v.GetDuration("REQUEST_TIMEOUT"); timeout > 0 {
		cfg.Server.RequestTimeout = timeout
	}
	if timeout := v.GetDuration("GRAPH_TIMEOUT"); timeout > 0 {
		cfg.Server.GraphTimeout = timeout
	}
	if url := v.GetString("INTERNAL_URL"); url != "" {
		cfg.Agent.InternalURL = url
	}
	if url := v.GetString("CANONICAL_REPO_URL"); url != "" {
		cfg.Agent.CanonicalRepoURL = url
	}

	// Unprefixed variables shared with deployment tooling
	cfg.KV.URL = os.Getenv("KV_URL")
	cfg.KV.Token = os.Getenv("KV_TOKEN")
	cfg.GitHub.Token = os.Getenv("GITHUB_TOKEN")
	cfg.Cron.Secret = os.Getenv("CRON_SECRET")

	return cfg, nil
}

// Validate checks that all required settings are present.
// GITHUB_TOKEN stays optional: unauthenticated host access works at a
// reduced quota.
func (c *Config) Validate() error {
	missing := []string{}
	if c.KV.URL == "" {
		missing = append(missing, "KV_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// loadEnvFiles loads .env files in order of precedence
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if path, err := findUp(file); err == nil {
			godotenv.Load(path)
		}
	}
}

// findUp searches for a file in the current and parent directories (max 5 levels)
func findUp(name string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	searchPath := cwd
	for i := 0; i < 5; i++ {
		candidate := filepath.Join(searchPath, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(searchPath)
		if parent == searchPath {
			break // Reached root
		}
		searchPath = parent
	}

	return "", fmt.Errorf("%s not found in %s or parent directories", name, cwd)
}
