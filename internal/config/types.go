// Package config loads and watches trendradar's configuration.
//
// YAML and JSON are both accepted; YAML is coerced to JSON so one strict
// decoder (DisallowUnknownFields) covers both. Validation happens at load
// time: a bad weight blend or push window is fatal at startup, never during
// a merge cycle.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Sources  SourcesConfig  `json:"sources"`
	Report   ReportConfig   `json:"report"`
	Weights  WeightsConfig  `json:"weights"`
	Push     PushConfig     `json:"push"`
	Channels ChannelsConfig `json:"channels"`

	// KeywordsPath points at the keyword-group rules file.
	KeywordsPath string `json:"keywords_path"`

	// Schedule is a cron expression; empty means one-shot runs only.
	Schedule string `json:"schedule,omitempty"`

	// Timezone resolves the wall clock used for day keys and push windows.
	// Empty means the system local zone.
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    string `json:"file,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SourcesConfig struct {
	// RequestTimeout is a Go duration string; default "10s".
	RequestTimeout string          `json:"request_timeout,omitempty"`
	NewsNow        *NewsNowConfig  `json:"newsnow,omitempty"`
	RSS            []RSSFeedConfig `json:"rss,omitempty"`
}

type NewsNowConfig struct {
	APIURL    string           `json:"api_url"`
	Platforms []PlatformConfig `json:"platforms"`
}

type PlatformConfig struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type RSSFeedConfig struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url"`
	// Limit caps how many entries one poll takes from the feed; default 20.
	Limit int `json:"limit,omitempty"`
}

type ReportConfig struct {
	// Mode: daily | current | incremental.
	Mode        string  `json:"mode,omitempty"`
	RankCeiling int     `json:"rank_ceiling,omitempty"`
	MaxRank     int     `json:"max_rank,omitempty"`
	Curve       string  `json:"curve,omitempty"` // linear | log

	// NewWindow (Go duration string) lets "new" status reset within a day:
	// an item missing from the lists for longer than this counts as newly
	// appeared when it comes back. Empty keeps day-boundary-only resets.
	NewWindow string `json:"new_window,omitempty"`

	HotnessScale        map[string]float64 `json:"hotness_scale,omitempty"`
	DefaultHotnessScale float64            `json:"default_hotness_scale,omitempty"`
}

// WeightsConfig must sum to 1.0. All-zero means "use defaults" (.6/.3/.1).
type WeightsConfig struct {
	Rank      float64 `json:"rank"`
	Frequency float64 `json:"frequency"`
	Hotness   float64 `json:"hotness"`
}

func (w WeightsConfig) IsZero() bool { return w.Rank == 0 && w.Frequency == 0 && w.Hotness == 0 }

type PushConfig struct {
	Enabled       bool   `json:"enabled"`
	WindowStart   string `json:"window_start,omitempty"`
	WindowEnd     string `json:"window_end,omitempty"`
	OncePerDay    bool   `json:"once_per_day,omitempty"`
	RetentionDays int    `json:"retention_days,omitempty"`
}

type ChannelsConfig struct {
	// RatePerSec throttles sends across all channels; default 1.
	RatePerSec int `json:"rate_per_sec,omitempty"`

	Telegram *TelegramChannelConfig `json:"telegram,omitempty"`
	Feishu   *WebhookChannelConfig  `json:"feishu,omitempty"`
	DingTalk *WebhookChannelConfig  `json:"dingtalk,omitempty"`
	WeWork   *WebhookChannelConfig  `json:"wework,omitempty"`
	Ntfy     *NtfyChannelConfig     `json:"ntfy,omitempty"`
	Email    *EmailChannelConfig    `json:"email,omitempty"`
}

type TelegramChannelConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	MaxBytes int    `json:"max_bytes,omitempty"` // default 4000
}

type WebhookChannelConfig struct {
	URL      string `json:"url"`
	MaxBytes int    `json:"max_bytes,omitempty"` // default 20000
}

type NtfyChannelConfig struct {
	ServerURL string `json:"server_url,omitempty"` // default https://ntfy.sh
	Topic     string `json:"topic"`
	Token     string `json:"token,omitempty"`
	MaxBytes  int    `json:"max_bytes,omitempty"` // default 4000
}

// EmailChannelConfig delivers the HTML report over SMTP. Port 465 uses
// implicit TLS, any other port upgrades with STARTTLS.
type EmailChannelConfig struct {
	Host     string   `json:"host"`
	Port     int      `json:"port,omitempty"` // default 465
	From     string   `json:"from"`
	Password string   `json:"password,omitempty"`
	To       []string `json:"to"`
	// MaxBytes of 0 sends the whole report as one mail.
	MaxBytes int `json:"max_bytes,omitempty"`
}

// ApplyDefaults fills zero fields in place.
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Console == nil {
		v := true
		c.Logging.Console = &v
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "./data"
	}
	if c.Sources.RequestTimeout == "" {
		c.Sources.RequestTimeout = "10s"
	}
	for i := range c.Sources.RSS {
		if c.Sources.RSS[i].Limit <= 0 {
			c.Sources.RSS[i].Limit = 20
		}
	}
	if c.Report.Mode == "" {
		c.Report.Mode = "daily"
	}
	if c.Report.RankCeiling == 0 {
		c.Report.RankCeiling = 10
	}
	if c.Report.Curve == "" {
		c.Report.Curve = "linear"
	}
	if c.Weights.IsZero() {
		c.Weights = WeightsConfig{Rank: 0.6, Frequency: 0.3, Hotness: 0.1}
	}
	if c.Push.WindowStart == "" {
		c.Push.WindowStart = "08:00"
	}
	if c.Push.WindowEnd == "" {
		c.Push.WindowEnd = "22:00"
	}
	if c.Push.RetentionDays == 0 {
		c.Push.RetentionDays = 7
	}
	if c.Channels.RatePerSec <= 0 {
		c.Channels.RatePerSec = 1
	}
	if c.Channels.Telegram != nil && c.Channels.Telegram.MaxBytes <= 0 {
		c.Channels.Telegram.MaxBytes = 4000
	}
	for _, wh := range []*WebhookChannelConfig{c.Channels.Feishu, c.Channels.DingTalk, c.Channels.WeWork} {
		if wh != nil && wh.MaxBytes <= 0 {
			wh.MaxBytes = 20000
		}
	}
	if c.Channels.Ntfy != nil {
		if c.Channels.Ntfy.ServerURL == "" {
			c.Channels.Ntfy.ServerURL = "https://ntfy.sh"
		}
		if c.Channels.Ntfy.MaxBytes <= 0 {
			c.Channels.Ntfy.MaxBytes = 4000
		}
	}
	if c.Channels.Email != nil && c.Channels.Email.Port == 0 {
		c.Channels.Email.Port = 465
	}
	if c.KeywordsPath == "" {
		c.KeywordsPath = "./config/keywords.txt"
	}
}

// Validate rejects configurations the engine must not run with.
func (c *Config) Validate() error {
	sum := c.Weights.Rank + c.Weights.Frequency + c.Weights.Hotness
	if diff := sum - 1.0; diff > 1e-9 || diff < -1e-9 {
		return fmt.Errorf("weights: rank+frequency+hotness must sum to 1.0, got %g", sum)
	}
	if c.Weights.Rank < 0 || c.Weights.Frequency < 0 || c.Weights.Hotness < 0 {
		return fmt.Errorf("weights: coefficients must be non-negative")
	}

	switch c.Report.Mode {
	case "daily", "current", "incremental":
	default:
		return fmt.Errorf("report.mode: unknown mode %q", c.Report.Mode)
	}
	switch c.Report.Curve {
	case "linear", "log":
	default:
		return fmt.Errorf("report.curve: unknown curve %q", c.Report.Curve)
	}

	if c.Push.Enabled {
		for _, clock := range []string{c.Push.WindowStart, c.Push.WindowEnd} {
			if err := validateClock(clock); err != nil {
				return fmt.Errorf("push window: %w", err)
			}
		}
	}

	if c.Storage.BusyTimeout != "" {
		if _, err := time.ParseDuration(c.Storage.BusyTimeout); err != nil {
			return fmt.Errorf("storage.busy_timeout: %w", err)
		}
	}
	if c.Sources.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.Sources.RequestTimeout); err != nil {
			return fmt.Errorf("sources.request_timeout: %w", err)
		}
	}
	if c.Report.NewWindow != "" {
		if _, err := time.ParseDuration(c.Report.NewWindow); err != nil {
			return fmt.Errorf("report.new_window: %w", err)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}

// Location resolves the configured timezone (system local when unset).
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// NewWindowDuration returns the parsed rolling new-window (0 when unset).
func (r ReportConfig) NewWindowDuration() time.Duration {
	d, err := time.ParseDuration(r.NewWindow)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// RequestTimeout returns the parsed source timeout with its default.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sources.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func validateClock(s string) error {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return fmt.Errorf("clock %q: want HH:MM", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("clock %q: out of range", s)
	}
	return nil
}
