package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FranksOps/wisher/internal/fingerprint"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "WISHER"

type Config struct {
	Log         LogConfig
	MetricsPort int
	Store       string
	Scan        ScanConfig
	API         APIConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type ScanConfig struct {
	Concurrency int
}

type APIConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Jitter            float64
	PageSize          int
	MaxPages          int
	Fingerprint       fingerprint.Profile
	BannerConcurrency int
	// Proxies and ProxyFile name HTTP(S) or SOCKS5 proxies for API requests.
	Proxies   []string
	ProxyFile string
}

var defaults = map[string]any{
	"log-level":              "info",
	"log-format":             "pretty",
	"metrics-port":           0,
	"store":                  "wisher.db",
	"scan.concurrency":       4,
	"api.timeout":            15 * time.Second,
	"api.rps":                2.0,
	"api.jitter":             0.2,
	"api.page-size":          20,
	"api.max-pages":          100,
	"api.fingerprint":        string(fingerprint.ProfileChrome),
	"api.banner-concurrency": 2,
	"api.proxies":            []string{},
	"api.proxy-file":         "",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":    "log-level",
	"log-format":   "log-format",
	"metrics-port": "metrics-port",
	"store":        "store",
	"concurrency":  "scan.concurrency",
	"timeout":      "api.timeout",
	"rps":          "api.rps",
	"fingerprint":  "api.fingerprint",
	"proxy":        "api.proxies",
	"proxy-file":   "api.proxy-file",
}

// Load merges, lowest precedence first: defaults, the config file at path
// (skipped when empty), a .env file in the working directory, WISHER_*
// environment variables, and flags that were set explicitly.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log-level"),
			Format: v.GetString("log-format"),
		},
		MetricsPort: v.GetInt("metrics-port"),
		Store:       v.GetString("store"),
		Scan: ScanConfig{
			Concurrency: v.GetInt("scan.concurrency"),
		},
		API: APIConfig{
			Timeout:           v.GetDuration("api.timeout"),
			RequestsPerSecond: v.GetFloat64("api.rps"),
			Jitter:            v.GetFloat64("api.jitter"),
			PageSize:          v.GetInt("api.page-size"),
			MaxPages:          v.GetInt("api.max-pages"),
			Fingerprint:       fingerprint.Profile(strings.ToLower(strings.TrimSpace(v.GetString("api.fingerprint")))),
			BannerConcurrency: v.GetInt("api.banner-concurrency"),
			Proxies:           v.GetStringSlice("api.proxies"),
			ProxyFile:         v.GetString("api.proxy-file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Log.Format {
	case "pretty", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log-format must be pretty, text or json, got %q", c.Log.Format))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics-port out of range: %d", c.MetricsPort))
	}
	if c.Store == "" {
		errs = append(errs, errors.New("store is required"))
	}
	if c.Scan.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("scan.concurrency must be positive, got %d", c.Scan.Concurrency))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if c.API.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("api.rps must not be negative, got %g", c.API.RequestsPerSecond))
	}
	if c.API.PageSize < 1 || c.API.PageSize > 20 {
		errs = append(errs, fmt.Errorf("api.page-size must be between 1 and 20, got %d", c.API.PageSize))
	}
	if _, err := fingerprint.ParseProfile(string(c.API.Fingerprint)); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
