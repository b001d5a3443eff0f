package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override the config file
const (
	EnvClientID    = "CHECKIN_CLIENT_ID"
	EnvRedirectURI = "CHECKIN_REDIRECT_URI"
	EnvStore       = "CHECKIN_STORE"
)

// Duration reads "720h" style strings from JSON and TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type StoreConfig struct {
	Driver string `json:"driver" toml:"driver"`
	Path   string `json:"path" toml:"path"`
}

type FetchConfig struct {
	Timeout           Duration `json:"timeout" toml:"timeout"`
	MaxResponseBytes  int64    `json:"max_response_bytes" toml:"max_response_bytes"`
	RequestsPerSecond float64  `json:"requests_per_second" toml:"requests_per_second"` // 0 is unlimited
	Burst             int      `json:"burst" toml:"burst"`
	Concurrency       int      `json:"concurrency" toml:"concurrency"`
}

type InboxConfig struct {
	MaxActivities int      `json:"max_activities" toml:"max_activities"`
	MaxAge        Duration `json:"max_age" toml:"max_age"`
}

type PlacesConfig struct {
	URL      string   `json:"url" toml:"url"`
	CacheTTL Duration `json:"cache_ttl" toml:"cache_ttl"`
}

type Config struct {
	ClientID    string       `json:"client_id" toml:"client_id"`
	RedirectURI string       `json:"redirect_uri" toml:"redirect_uri"`
	Listen      string       `json:"listen" toml:"listen"` // address for the web front end
	Verbose     bool         `json:"verbose" toml:"verbose"`
	Store       StoreConfig  `json:"store" toml:"store"`
	Fetch       FetchConfig  `json:"fetch" toml:"fetch"`
	Inbox       InboxConfig  `json:"inbox" toml:"inbox"`
	Places      PlacesConfig `json:"places" toml:"places"`
}

func DefaultConfig() Config {
	return Config{
		RedirectURI: "http://localhost:8080/callback",
		Listen:      "localhost:8080",
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "checkin.db",
		},
		Fetch: FetchConfig{
			Timeout:          Duration{10 * time.Second},
			MaxResponseBytes: 1 << 20,
			Burst:            1,
			Concurrency:      4,
		},
		Inbox: InboxConfig{
			MaxActivities: 20,
			MaxAge:        Duration{720 * time.Hour},
		},
		Places: PlacesConfig{
			URL:      "https://places.pub/search",
			CacheTTL: Duration{10 * time.Minute},
		},
	}
}

// ReadConfig parses JSON config over the defaults
func ReadConfig(b []byte) (config Config, err error) {
	config = DefaultConfig()
	if uErr := json.Unmarshal(b, &config); uErr != nil {
		return config, uErr
	}
	return config, nil
}

// ReadTOMLConfig parses TOML config over the defaults
func ReadTOMLConfig(b []byte) (config Config, err error) {
	config = DefaultConfig()
	if _, dErr := toml.Decode(string(b), &config); dErr != nil {
		return config, dErr
	}
	return config, nil
}

// LoadConfig reads a config file, choosing the format by extension.
// An empty path gives the defaults.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		cfg, err = ReadTOMLConfig(b)
	default:
		cfg, err = ReadConfig(b)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv loads .env files, if present, and overrides the config
// from the environment
func (c *Config) ApplyEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading environment: %w", err)
	}
	if v := os.Getenv(EnvClientID); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv(EnvRedirectURI); v != "" {
		c.RedirectURI = v
	}
	if v := os.Getenv(EnvStore); v != "" {
		c.Store.Path = v
	}
	return nil
}
