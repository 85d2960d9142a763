package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Search backends.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

const (
	DefaultAPIURL            = "https://clotributor.dev"
	DefaultSearchTimeout     = 15 * time.Second
	DefaultHost              = "localhost"
	DefaultPort              = "8080"
	DefaultConcurrency       = 4
	DefaultRepositoryTimeout = 300 * time.Second
)

type Config struct {
	StorageDir string        `toml:"storage_dir"`
	Search     SearchConfig  `toml:"search"`
	Web        WebConfig     `toml:"web"`
	Tracker    TrackerConfig `toml:"tracker"`
}

type SearchConfig struct {
	// Backend is either "remote" (the hosted search API at APIURL) or
	// "local" (the SQLite index filled by the track command).
	Backend string   `toml:"backend"`
	APIURL  string   `toml:"api_url"`
	Timeout Duration `toml:"timeout"`
}

type WebConfig struct {
	Host string `toml:"host"`
	Port string `toml:"port"`
}

type TrackerConfig struct {
	Concurrency       int             `toml:"concurrency"`
	RepositoryTimeout Duration        `toml:"repository_timeout"`
	GitHubTokens      []string        `toml:"github_tokens"`
	Projects          []ProjectConfig `toml:"projects"`
}

// ProjectConfig registers a project and the repositories the tracker
// follows for it.
type ProjectConfig struct {
	Name         string   `toml:"name"`
	DisplayName  string   `toml:"display_name,omitempty"`
	Description  string   `toml:"description,omitempty"`
	Foundation   string   `toml:"foundation"`
	Maturity     string   `toml:"maturity,omitempty"`
	Repositories []string `toml:"repositories"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	cfg := &Config{StorageDir: storageDir}
	cfg.applyDefaults()
	return cfg, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if cfg.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		cfg.StorageDir = storageDir
	}

	return cfg, nil
}

// Parse decodes and validates TOML configuration data. Missing settings get
// their defaults; StorageDir is left as found.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Search.Backend == "" {
		c.Search.Backend = BackendRemote
	}
	if c.Search.APIURL == "" {
		c.Search.APIURL = DefaultAPIURL
	}
	if c.Search.Timeout.Duration == 0 {
		c.Search.Timeout = Duration{DefaultSearchTimeout}
	}
	if c.Web.Host == "" {
		c.Web.Host = DefaultHost
	}
	if c.Web.Port == "" {
		c.Web.Port = DefaultPort
	}
	if c.Tracker.Concurrency <= 0 {
		c.Tracker.Concurrency = DefaultConcurrency
	}
	if c.Tracker.RepositoryTimeout.Duration == 0 {
		c.Tracker.RepositoryTimeout = Duration{DefaultRepositoryTimeout}
	}
}

// Validate checks settings that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Search.Backend {
	case BackendRemote:
		u, err := url.Parse(c.Search.APIURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid search api_url %q", c.Search.APIURL)
		}
	case BackendLocal:
	default:
		return fmt.Errorf("unknown search backend %q (want %q or %q)", c.Search.Backend, BackendRemote, BackendLocal)
	}

	for i, p := range c.Tracker.Projects {
		if p.Name == "" {
			return fmt.Errorf("tracker project #%d has no name", i+1)
		}
		for _, repo := range p.Repositories {
			if !strings.HasPrefix(repo, "https://github.com/") {
				return fmt.Errorf("project %s: repository %q is not a GitHub URL", p.Name, repo)
			}
		}
	}
	return nil
}

// DatabasePath is where preferences and the local issue index are stored.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.StorageDir, "cloradar.db")
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Point storage_dir at the actual default location
	template := strings.Replace(configTemplate, "/home/user/.local/share/cloradar", c.StorageDir, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// GetDefaultStorageDir returns the default storage directory for databases
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "cloradar")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetConfigDir returns the configuration directory for cloradar
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "cloradar")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
