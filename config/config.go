package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/tubetok/tubetok/logger"
)

type Regexp regexp.Regexp

// Duration is a time.Duration that unmarshals from strings like "30s".
type Duration time.Duration

type Config struct {
	App             AppConfig        `yaml:"app"`
	Credentials     []string         `yaml:"credentials"`
	CredentialsFile string           `yaml:"credentials_file"`
	Channels        []Channel        `yaml:"channels"`
	ChannelsFile    string           `yaml:"channels_file"`
	Poll            PollConfig       `yaml:"poll"`
	Scraper         ScraperConfig    `yaml:"scraper"`
	Download        DownloadConfig   `yaml:"download"`
	Trim            TrimConfig       `yaml:"trim"`
	History         HistoryConfig    `yaml:"history"`
	Uploaders       []ModuleConfig   `yaml:"uploaders"`
	Notifiers       []NotifierConfig `yaml:"notifiers"`
}

type AppConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// Workdir is where per-video temporary directories are created.
	Workdir string `yaml:"workdir"`
	// Listen is the address of the status API. Empty disables it.
	Listen string `yaml:"listen"`
	// UI is one of "table", "tui" or "none".
	UI string `yaml:"ui"`
}

type Channel struct {
	Id   string `yaml:"id"`
	Name string `yaml:"name"`
	// Filters restrict which new videos are processed by title. An empty list
	// lets every video through.
	Filters []Regexp `yaml:"filters"`
}

type PollConfig struct {
	Interval       Duration `yaml:"interval"`
	EmptyDelay     Duration `yaml:"empty_delay"`
	AuthDelay      Duration `yaml:"auth_delay"`
	TransientDelay Duration `yaml:"transient_delay"`
	// MaxInFlight bounds how many detected videos of one channel may be in the
	// pipeline at once. 1 means the poller waits for each video to finish.
	MaxInFlight int `yaml:"max_in_flight"`
}

type ScraperConfig struct {
	// Type is "youtube" (Data API v3) or "rss".
	Type string `yaml:"type"`
	// Endpoint overrides the base URL of the backing service.
	Endpoint string `yaml:"endpoint"`
	// RateLimit caps lookups per second across all channels. 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	// Burst is the number of lookups allowed at once when RateLimit is set.
	Burst int `yaml:"burst"`
}

type DownloadConfig struct {
	ExecPath  string   `yaml:"executable_path"`
	MaxHeight int      `yaml:"max_height"`
	Flags     []string `yaml:"flags"`
}

type TrimConfig struct {
	Enabled  bool     `yaml:"enabled"`
	ExecPath string   `yaml:"executable_path"`
	Duration Duration `yaml:"duration"`
}

type HistoryConfig struct {
	// Type is "memory" or "sqlite".
	Type string   `yaml:"type"`
	Path string   `yaml:"path"`
	TTL  Duration `yaml:"ttl"`
}

type ModuleConfig struct {
	// Name is an arbitrary human-readable identifier for the module.
	Name string `yaml:"name"`
	// Type defines what module to instantiate.
	Type string `yaml:"type"`
	// Config is the module-specific configuration.
	Config map[string]string `yaml:"config"`
}

type NotifierConfig struct {
	ModuleConfig `yaml:",inline"`
}

// Default returns the configuration used for any value the file leaves out.
func Default() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:  "info",
			LogFormat: "text",
			Workdir:   "./work",
			UI:        "table",
		},
		Poll: PollConfig{
			Interval:       Duration(30 * time.Second),
			EmptyDelay:     Duration(2 * time.Second),
			AuthDelay:      Duration(time.Second),
			TransientDelay: Duration(5 * time.Second),
			MaxInFlight:    1,
		},
		Scraper: ScraperConfig{Type: "youtube"},
		Download: DownloadConfig{
			ExecPath:  "yt-dlp",
			MaxHeight: 720,
		},
		Trim: TrimConfig{
			ExecPath: "ffmpeg",
			Duration: Duration(65 * time.Second),
		},
		History: HistoryConfig{
			Type: "memory",
			Path: "./data/history.sqlite",
			TTL:  Duration(30 * 24 * time.Hour),
		},
	}
}

// LoadConfig reads .env (if present), the YAML file at path, the credential
// and channel text files it references, and finally environment overrides.
// The result is validated.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(data, config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := config.loadFiles(); err != nil {
		return nil, err
	}
	if err := config.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) loadFiles() error {
	if c.CredentialsFile != "" {
		lines, err := LoadLines(c.CredentialsFile)
		if err != nil {
			return fmt.Errorf("load credentials: %w", err)
		}
		c.Credentials = append(c.Credentials, lines...)
	}
	if c.ChannelsFile != "" {
		lines, err := LoadLines(c.ChannelsFile)
		if err != nil {
			return fmt.Errorf("load channels: %w", err)
		}
		for _, line := range lines {
			c.Channels = append(c.Channels, ParseChannelLine(line, len(c.Channels)))
		}
	}
	return nil
}

func (c *Config) loadFromEnv() error {
	if v := os.Getenv("TUBETOK_CREDENTIALS"); v != "" {
		c.Credentials = nil
		for _, cred := range strings.Split(v, ",") {
			if cred = strings.TrimSpace(cred); cred != "" {
				c.Credentials = append(c.Credentials, cred)
			}
		}
	}
	if v := os.Getenv("TUBETOK_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv("TUBETOK_LOG_FORMAT"); v != "" {
		c.App.LogFormat = v
	}
	if v := os.Getenv("TUBETOK_LISTEN"); v != "" {
		c.App.Listen = v
	}
	if v := os.Getenv("TUBETOK_UI"); v != "" {
		c.App.UI = v
	}
	if v := os.Getenv("TUBETOK_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TUBETOK_POLL_INTERVAL: %w", err)
		}
		c.Poll.Interval = Duration(d)
	}
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if len(c.Credentials) == 0 {
		return fmt.Errorf("at least one credential is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	seen := make(map[string]bool, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.Id == "" {
			return fmt.Errorf("channel %d: id is required", i)
		}
		if seen[ch.Id] {
			return fmt.Errorf("channel %s is listed twice", ch.Id)
		}
		seen[ch.Id] = true
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Poll.EmptyDelay < 0 || c.Poll.AuthDelay < 0 || c.Poll.TransientDelay < 0 {
		return fmt.Errorf("poll delays must be non-negative")
	}
	if c.Poll.MaxInFlight < 1 {
		return fmt.Errorf("poll.max_in_flight must be at least 1")
	}
	switch c.Scraper.Type {
	case "youtube", "rss":
	default:
		return fmt.Errorf("unknown scraper type: %s", c.Scraper.Type)
	}
	if c.Scraper.RateLimit < 0 {
		return fmt.Errorf("scraper.rate_limit must be non-negative")
	}
	switch c.History.Type {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown history type: %s", c.History.Type)
	}
	switch c.App.UI {
	case "table", "tui", "none":
	default:
		return fmt.Errorf("unknown ui: %s", c.App.UI)
	}
	if c.Trim.Enabled && c.Trim.Duration <= 0 {
		return fmt.Errorf("trim.duration must be positive")
	}
	return nil
}

// LogLevel returns the parsed application log level.
func (c *Config) LogLevel() logger.LogLevel {
	return logger.ParseLevel(c.App.LogLevel)
}

func (r *Regexp) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	re, err := regexp.Compile(s)
	if err != nil {
		return err
	}
	*r = Regexp(*re)
	return nil
}

// MatchString reports whether the title matches.
func (r *Regexp) MatchString(s string) bool {
	return (*regexp.Regexp)(r).MatchString(s)
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
