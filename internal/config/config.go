package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "PAPERSTREAM_CONFIG"
	dbPathEnv         = "PAPERSTREAM_DB_PATH"
	dataPathEnv       = "PAPERSTREAM_DATA_PATH"
	unpaywallEmailEnv = "PAPERSTREAM_UNPAYWALL_EMAIL"
	providerEnv       = "PAPERSTREAM_SUMMARY_PROVIDER"
)

// Config holds the settings shared across the application.
type Config struct {
	DBPath   string         `yaml:"dbPath"`
	DataPath string         `yaml:"dataPath"`
	Fetch    FetchConfig    `yaml:"fetch"`
	FullText FullTextConfig `yaml:"fulltext"`
	Summary  SummaryConfig  `yaml:"summary"`
	Secrets  SecretsConfig  `yaml:"secrets"`
	Journals []JournalSeed  `yaml:"journals"`
}

// FetchConfig controls the feed fetch cycle.
type FetchConfig struct {
	DelaySeconds   int `yaml:"delaySeconds"`   // pause between journals in a run
	TimeoutSeconds int `yaml:"timeoutSeconds"` // per-feed HTTP timeout
	Hour           int `yaml:"hour"`           // daily run, local time
	Minute         int `yaml:"minute"`
}

// FullTextConfig controls open-access resolution and download limits.
type FullTextConfig struct {
	UnpaywallURL     string `yaml:"unpaywallUrl"`
	Email            string `yaml:"email"` // required by the Unpaywall API
	TimeoutSeconds   int    `yaml:"timeoutSeconds"`
	MaxDownloadBytes int64  `yaml:"maxDownloadBytes"`
	MaxTextChars     int    `yaml:"maxTextChars"`
}

// SummaryConfig selects the default LLM provider and its endpoints.
type SummaryConfig struct {
	Provider       string         `yaml:"provider"`
	TimeoutSeconds int            `yaml:"timeoutSeconds"`
	OpenAI         ProviderConfig `yaml:"openai"`
	Anthropic      ProviderConfig `yaml:"anthropic"`
}

// ProviderConfig defines how to contact one LLM API.
type ProviderConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Model   string `yaml:"model"`
}

// SecretsConfig locates the encrypted API key store.
type SecretsConfig struct {
	Path string `yaml:"path"`
}

// JournalSeed declares a journal that should exist on startup.
type JournalSeed struct {
	Name   string `yaml:"name"`
	RSSURL string `yaml:"rssUrl"`
}

// Load reads YAML configuration and applies environment overrides. An
// empty path falls back to the PAPERSTREAM_CONFIG environment variable;
// when neither names a file, built-in defaults apply.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
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
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(dbPathEnv); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(dataPathEnv); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv(unpaywallEmailEnv); v != "" {
		c.FullText.Email = v
	}
	if v := os.Getenv(providerEnv); v != "" {
		c.Summary.Provider = v
	}
}

// PDFDir is where downloaded PDFs are stored, content-addressed.
func (c Config) PDFDir() string {
	return filepath.Join(c.DataPath, "pdfs")
}

// SecretsPath resolves the key store location, defaulting under DataPath.
func (c Config) SecretsPath() string {
	if c.Secrets.Path != "" {
		return c.Secrets.Path
	}
	return filepath.Join(c.DataPath, "secrets.json")
}

// Validate reports obviously unusable settings before any component starts.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("dbPath must not be empty")
	}
	if c.Fetch.Hour < 0 || c.Fetch.Hour > 23 {
		return fmt.Errorf("fetch.hour out of range: %d", c.Fetch.Hour)
	}
	if c.Fetch.Minute < 0 || c.Fetch.Minute > 59 {
		return fmt.Errorf("fetch.minute out of range: %d", c.Fetch.Minute)
	}
	if c.FullText.MaxDownloadBytes <= 0 {
		return fmt.Errorf("fulltext.maxDownloadBytes must be positive")
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.DBPath != "" {
		base.DBPath = override.DBPath
	}
	if override.DataPath != "" {
		base.DataPath = override.DataPath
	}

	if override.Fetch.DelaySeconds != 0 {
		base.Fetch.DelaySeconds = override.Fetch.DelaySeconds
	}
	if override.Fetch.TimeoutSeconds != 0 {
		base.Fetch.TimeoutSeconds = override.Fetch.TimeoutSeconds
	}
	if override.Fetch.Hour != 0 {
		base.Fetch.Hour = override.Fetch.Hour
	}
	if override.Fetch.Minute != 0 {
		base.Fetch.Minute = override.Fetch.Minute
	}

	if override.FullText.UnpaywallURL != "" {
		base.FullText.UnpaywallURL = override.FullText.UnpaywallURL
	}
	if override.FullText.Email != "" {
		base.FullText.Email = override.FullText.Email
	}
	if override.FullText.TimeoutSeconds != 0 {
		base.FullText.TimeoutSeconds = override.FullText.TimeoutSeconds
	}
	if override.FullText.MaxDownloadBytes != 0 {
		base.FullText.MaxDownloadBytes = override.FullText.MaxDownloadBytes
	}
	if override.FullText.MaxTextChars != 0 {
		base.FullText.MaxTextChars = override.FullText.MaxTextChars
	}

	if override.Summary.Provider != "" {
		base.Summary.Provider = override.Summary.Provider
	}
	if override.Summary.TimeoutSeconds != 0 {
		base.Summary.TimeoutSeconds = override.Summary.TimeoutSeconds
	}
	if override.Summary.OpenAI.BaseURL != "" {
		base.Summary.OpenAI.BaseURL = override.Summary.OpenAI.BaseURL
	}
	if override.Summary.OpenAI.Model != "" {
		base.Summary.OpenAI.Model = override.Summary.OpenAI.Model
	}
	if override.Summary.Anthropic.BaseURL != "" {
		base.Summary.Anthropic.BaseURL = override.Summary.Anthropic.BaseURL
	}
	if override.Summary.Anthropic.Model != "" {
		base.Summary.Anthropic.Model = override.Summary.Anthropic.Model
	}

	if override.Secrets.Path != "" {
		base.Secrets.Path = override.Secrets.Path
	}

	if len(override.Journals) > 0 {
		base.Journals = override.Journals
	}

	return base
}

func defaultConfig() Config {
	return Config{
		DBPath:   "data/paperstream.db",
		DataPath: "data",
		Fetch: FetchConfig{
			DelaySeconds:   5,
			TimeoutSeconds: 30,
			Hour:           6,
			Minute:         0,
		},
		FullText: FullTextConfig{
			UnpaywallURL:     "https://api.unpaywall.org",
			Email:            "",
			TimeoutSeconds:   60,
			MaxDownloadBytes: 20 << 20,
			MaxTextChars:     500_000,
		},
		Summary: SummaryConfig{
			Provider:       "openai",
			TimeoutSeconds: 120,
			OpenAI: ProviderConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "gpt-4o-mini",
			},
			Anthropic: ProviderConfig{
				BaseURL: "https://api.anthropic.com",
				Model:   "claude-3-5-sonnet-20241022",
			},
		},
	}
}
