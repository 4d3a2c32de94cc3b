package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Database    DatabaseConfig    `toml:"database"`
	Credentials CredentialsConfig `toml:"credentials"`
	Limits      LimitsConfig      `toml:"limits"`
	Retry       RetryConfig       `toml:"retry"`
	Cache       CacheConfig       `toml:"cache"`
	Sync        SyncConfig        `toml:"sync"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// CredentialsConfig contains per-provider credentials.
type CredentialsConfig struct {
	Spin     SpinConfig     `toml:"spin"`
	Mixcloud MixcloudConfig `toml:"mixcloud"`
	YouTube  YouTubeConfig  `toml:"youtube"`
	Discogs  DiscogsConfig  `toml:"discogs"`
}

// SpinConfig contains playlist source credentials and the station slug to sync.
type SpinConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Station string `toml:"station"`
}

// MixcloudConfig contains publishing platform OAuth credentials.
type MixcloudConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// YouTubeConfig contains the YouTube Data API key.
type YouTubeConfig struct {
	APIKey string `toml:"api_key"`
}

// DiscogsConfig contains the Discogs personal access token.
type DiscogsConfig struct {
	Token string `toml:"token"`
}

// LimitsConfig contains inbound rate limit defaults.
type LimitsConfig struct {
	Requests      int `toml:"requests"`
	WindowSeconds int `toml:"window_seconds"`
	SweepMinutes  int `toml:"sweep_minutes"`
}

// Window returns the configured rate limit window as a [time.Duration].
func (l LimitsConfig) Window() time.Duration {
	return time.Duration(l.WindowSeconds) * time.Second
}

// RetryConfig contains outbound retry and timeout defaults, with optional
// per-provider overrides keyed by provider name.
type RetryConfig struct {
	MaxRetries     int                        `toml:"max_retries"`
	BaseDelayMS    int                        `toml:"base_delay_ms"`
	DelayCapMS     int                        `toml:"delay_cap_ms"`
	TimeoutSeconds int                        `toml:"timeout_seconds"`
	Overrides      map[string]RetryOverride   `toml:"overrides"`
}

// RetryOverride is a partial RetryConfig; zero fields fall back to the defaults.
type RetryOverride struct {
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMS int `toml:"base_delay_ms"`
	DelayCapMS  int `toml:"delay_cap_ms"`
}

// For resolves the effective retry settings for a provider name.
func (r RetryConfig) For(provider string) (maxRetries int, baseDelay, delayCap time.Duration) {
	maxRetries = r.MaxRetries
	baseDelay = time.Duration(r.BaseDelayMS) * time.Millisecond
	delayCap = time.Duration(r.DelayCapMS) * time.Millisecond

	o, ok := r.Overrides[provider]
	if !ok {
		return maxRetries, baseDelay, delayCap
	}
	if o.MaxRetries > 0 {
		maxRetries = o.MaxRetries
	}
	if o.BaseDelayMS > 0 {
		baseDelay = time.Duration(o.BaseDelayMS) * time.Millisecond
	}
	if o.DelayCapMS > 0 {
		delayCap = time.Duration(o.DelayCapMS) * time.Millisecond
	}
	return maxRetries, baseDelay, delayCap
}

// Timeout returns the configured outbound call timeout.
func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// CacheConfig contains freshness policies for derived/cached data.
type CacheConfig struct {
	EnrichmentTTLMinutes int `toml:"enrichment_ttl_minutes"`
	QuotaTTLSeconds      int `toml:"quota_ttl_seconds"`
}

// EnrichmentTTL returns the enrichment cache freshness window.
func (c CacheConfig) EnrichmentTTL() time.Duration {
	return time.Duration(c.EnrichmentTTLMinutes) * time.Minute
}

// QuotaTTL returns how long a quota probe result may be reused.
func (c CacheConfig) QuotaTTL() time.Duration {
	return time.Duration(c.QuotaTTLSeconds) * time.Second
}

// SyncConfig contains scheduled sync settings.
type SyncConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	RecentHours     int `toml:"recent_hours"`
}

// Interval returns the scheduled full-sync period.
func (s SyncConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// A .env file in the working directory is loaded first (if present), and
// AIRWAVE_* environment variables override credential fields afterwards so
// secrets can stay out of the config file.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyEnvOverrides()
	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	config.applyEnvOverrides()
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"AIRWAVE_SPIN_API_KEY", &c.Credentials.Spin.APIKey},
		{"AIRWAVE_MIXCLOUD_CLIENT_ID", &c.Credentials.Mixcloud.ClientID},
		{"AIRWAVE_MIXCLOUD_CLIENT_SECRET", &c.Credentials.Mixcloud.ClientSecret},
		{"AIRWAVE_YOUTUBE_API_KEY", &c.Credentials.YouTube.APIKey},
		{"AIRWAVE_DISCOGS_TOKEN", &c.Credentials.Discogs.Token},
	}

	for _, o := range overrides {
		if v := os.Getenv(o.key); v != "" {
			*o.target = v
		}
	}
}
