package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	xdgAppName = "weworkmcp"
	configFile = "config.json"

	ModeHTTP  = "http"
	ModeStdio = "stdio"
)

// Duration is a time.Duration that reads from JSON as either "2s" or a number of
// nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := cast.ToDurationE(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %s: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	AccessToken     string   `json:"access_token,omitempty"`
	BaseURL         string   `json:"base_url"`
	ServerMode      string   `json:"server_mode"`
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	MatchThreshold  float64  `json:"match_threshold"`
	FetchRetries    int      `json:"fetch_retries"`
	FetchRetryDelay Duration `json:"fetch_retry_delay"`
	FetchTimeout    Duration `json:"fetch_timeout"`
	ExportDir       string   `json:"export_dir"`
	// Calendar names the Google calendar that receives deadline events. Empty disables sync.
	Calendar  string `json:"calendar,omitempty"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

func Default() *Config {
	return &Config{
		BaseURL:         "https://wework.base.vn/extapi/v3",
		ServerMode:      ModeHTTP,
		Host:            "0.0.0.0",
		Port:            8000,
		MatchThreshold:  0.3,
		FetchRetries:    3,
		FetchRetryDelay: Duration(2 * time.Second),
		FetchTimeout:    Duration(30 * time.Second),
		ExportDir:       ".",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", xdgAppName), nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// Load builds the effective configuration: defaults, then the config file, then .env and
// the process environment. Flags are applied by the caller on top.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the config file at path over the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("WEWORK_ACCESS_TOKEN", &c.AccessToken)
	str("WEWORK_BASE_URL", &c.BaseURL)
	str("HOST", &c.Host)
	str("EXPORT_DIR", &c.ExportDir)
	str("GOOGLE_CALENDAR", &c.Calendar)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	if v, ok := lookup("SERVER_MODE"); ok && v != "" {
		c.ServerMode = strings.ToLower(v)
	}

	var errs []error
	if v, ok := lookup("PORT"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("PORT: %w", err))
		}
		c.Port = n
	}
	if v, ok := lookup("MATCH_THRESHOLD"); ok && v != "" {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MATCH_THRESHOLD: %w", err))
		}
		c.MatchThreshold = f
	}
	if v, ok := lookup("FETCH_RETRIES"); ok && v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FETCH_RETRIES: %w", err))
		}
		c.FetchRetries = n
	}
	for key, dst := range map[string]*Duration{
		"FETCH_RETRY_DELAY": &c.FetchRetryDelay,
		"FETCH_TIMEOUT":     &c.FetchTimeout,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := cast.ToDurationE(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			*dst = Duration(d)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	switch c.ServerMode {
	case ModeHTTP, ModeStdio:
	default:
		return fmt.Errorf("server mode must be %q or %q, got %q", ModeHTTP, ModeStdio, c.ServerMode)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.MatchThreshold < 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be within [0, 1], got %v", c.MatchThreshold)
	}
	return nil
}

// Save writes cfg to the config file. The access token is never persisted.
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file for writing: %w", err)
	}
	defer f.Close()

	out := *cfg
	out.AccessToken = ""
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}
