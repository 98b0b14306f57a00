package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

const (
	DefaultPort           = 8787
	DefaultConfigFilename = "config.json"
	DefaultHost           = "127.0.0.1"

	DefaultAPIURL          = "https://api.1min.ai/api/features"
	DefaultStreamingAPIURL = "https://api.1min.ai/api/features?isStreaming=true"
	DefaultAssetURL        = "https://api.1min.ai/api/assets"
)

// OneMin holds the downstream endpoint locations.
type OneMin struct {
	APIURL          string `json:"api_url,omitempty"`
	StreamingAPIURL string `json:"streaming_api_url,omitempty"`
	AssetURL        string `json:"asset_url,omitempty"`
}

// WebSearch holds the raw override strings for the search limits. They stay
// strings here; sanitization happens where they are consumed.
type WebSearch struct {
	NumOfSite string `json:"num_of_site,omitempty"`
	MaxWord   string `json:"max_word,omitempty"`
}

// RateLimit toggles request throttling.
type RateLimit struct {
	Disabled bool `json:"disabled,omitempty"`
}

type Config struct {
	Host      string    `json:"HOST,omitempty"`
	Port      int       `json:"PORT,omitempty"`
	AuthToken string    `json:"AUTH_TOKEN,omitempty"`
	OneMin    OneMin    `json:"OneMin"`
	WebSearch WebSearch `json:"WebSearch,omitempty"`
	RateLimit RateLimit `json:"RateLimit,omitempty"`
}

type Manager struct {
	configPath  string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{
		configPath: filepath.Join(baseDir, DefaultConfigFilename),
	}
}

func (m *Manager) Load() (*Config, error) {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	m.configValue.Store(&cfg)

	return &cfg, nil
}

func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		// Fall back to pure defaults when no file exists yet
		fallback := &Config{}
		applyDefaults(fallback)
		applyEnv(fallback)

		return fallback
	}

	return cfg
}

func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

func (m *Manager) GetPath() string {
	return m.configPath
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.configPath)
	return err == nil
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	if cfg.OneMin.APIURL == "" {
		cfg.OneMin.APIURL = DefaultAPIURL
	}

	if cfg.OneMin.StreamingAPIURL == "" {
		cfg.OneMin.StreamingAPIURL = DefaultStreamingAPIURL
	}

	if cfg.OneMin.AssetURL == "" {
		cfg.OneMin.AssetURL = DefaultAssetURL
	}
}

// applyEnv lets the environment win over the file for deployment-specific
// settings.
func applyEnv(cfg *Config) {
	if v := os.Getenv("ONE_MIN_API_URL"); v != "" {
		cfg.OneMin.APIURL = v
	}

	if v := os.Getenv("ONE_MIN_CONVERSATION_API_STREAMING_URL"); v != "" {
		cfg.OneMin.StreamingAPIURL = v
	}

	if v := os.Getenv("ONE_MIN_ASSET_URL"); v != "" {
		cfg.OneMin.AssetURL = v
	}

	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		cfg.AuthToken = v
	}

	if v := os.Getenv("WEB_SEARCH_NUM_OF_SITE"); v != "" {
		cfg.WebSearch.NumOfSite = v
	}

	if v := os.Getenv("WEB_SEARCH_MAX_WORD"); v != "" {
		cfg.WebSearch.MaxWord = v
	}
}
