package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/SoarinFerret/StreamWarden/internal/eval"
)

const (
	DefaultPath       = "/etc/streamwarden/config.toml"
	DefaultAdminLabel = "Server Admin"
	DefaultReason     = "{{.Admin}}'s stream takes priority and {{.User}}(you) has {{.Count}} concurrent streams." +
		" {{.User}}'s stream of {{.Video}} is {{.Percent}}% complete. Should be finished in {{.Minutes}} minutes. " +
		"Try again then."
)

var (
	ErrMissingServerURL = errors.New("server url is required")
	ErrMissingToken     = errors.New("server token is required")
	ErrMissingAdmins    = errors.New("at least one admin username is required")
)

// Duration is a time.Duration written as a Go duration string ("30s", "5m").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", string(text))
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type ServerConfig struct {
	URL                string   `toml:"url"`
	Token              string   `toml:"token"`
	Timeout            Duration `toml:"timeout"`
	InsecureSkipVerify *bool    `toml:"insecure_skip_verify"`
}

type PolicyConfig struct {
	Admins     []string `toml:"admins"`
	Strategy   string   `toml:"strategy"`
	Recheck    *bool    `toml:"recheck"`
	DryRun     bool     `toml:"dry_run"`
	AdminLabel string   `toml:"admin_label"`
	Reason     string   `toml:"reason"`
}

type WatchConfig struct {
	Interval         Duration `toml:"interval"`
	RequireBuffering *bool    `toml:"require_buffering"`
}

type NotifyConfig struct {
	Desktop    bool   `toml:"desktop"`
	BusAddress string `toml:"bus_address"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Server ServerConfig `toml:"server"`
	Policy PolicyConfig `toml:"policy"`
	Watch  WatchConfig  `toml:"watch"`
	Notify NotifyConfig `toml:"notify"`
	Log    LogConfig    `toml:"log"`
}

// SetDefault fills every unset value with its default.
func (c *Config) SetDefault() {
	if c.Server.Timeout == 0 {
		c.Server.Timeout = Duration(10 * time.Second)
	}
	if c.Server.InsecureSkipVerify == nil {
		defaultVal := true
		c.Server.InsecureSkipVerify = &defaultVal
	}
	if c.Policy.Strategy == "" {
		c.Policy.Strategy = string(eval.StrategyLowest)
	}
	if c.Policy.Recheck == nil {
		defaultVal := true
		c.Policy.Recheck = &defaultVal
	}
	if c.Policy.AdminLabel == "" {
		c.Policy.AdminLabel = DefaultAdminLabel
	}
	if c.Policy.Reason == "" {
		c.Policy.Reason = DefaultReason
	}
	if c.Watch.Interval == 0 {
		c.Watch.Interval = Duration(30 * time.Second)
	}
	if c.Watch.RequireBuffering == nil {
		defaultVal := true
		c.Watch.RequireBuffering = &defaultVal
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the values every run needs.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return ErrMissingServerURL
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid server url %q: scheme must be http or https", c.Server.URL)
	}
	if c.Server.Token == "" {
		return ErrMissingToken
	}
	if len(c.Policy.Admins) == 0 {
		return ErrMissingAdmins
	}
	if _, err := eval.ParseStrategy(c.Policy.Strategy); err != nil {
		return err
	}
	return nil
}

// Default returns a configuration with only defaults applied.
func Default() Config {
	var config Config
	config.SetDefault()
	return config
}

func LoadConfigFromFile(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	var config Config
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	config.SetDefault()
	return config, nil
}

func LoadConfigFromBytes(data []byte) (Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}
	config.SetDefault()
	return config, nil
}
