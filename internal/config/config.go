// Package config loads geostream configuration from a TOML file and environment variables, exposing typed structs and accessors for all sections.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const defaultTelegramChannel = "telegram"

// Config is the runtime configuration loaded from defaults, config.toml, and env vars.
type Config struct {
	// HomeDir is runtime-resolved from GEOSTREAM_HOME and not read from config.
	HomeDir     string                   `mapstructure:"-"`
	Credentials CredentialsConfig        `mapstructure:"credentials"`
	Stream      StreamConfig             `mapstructure:"stream"`
	Filters     FiltersConfig            `mapstructure:"filters"`
	Outputs     OutputsConfig            `mapstructure:"outputs"`
	Channels    map[string]ChannelConfig `mapstructure:"channels"`
	Schedule    ScheduleConfig           `mapstructure:"schedule"`
	HTTP        HTTPConfig               `mapstructure:"http"`
}

// CredentialsConfig seeds the credential store at startup.
type CredentialsConfig struct {
	ConsumerKey    string `mapstructure:"consumer_key"`
	ConsumerSecret string `mapstructure:"consumer_secret"`
	AccessToken    string `mapstructure:"access_token"`
	AccessSecret   string `mapstructure:"access_secret"`
}

// StreamConfig configures the upstream connection and session buffer.
type StreamConfig struct {
	ClientName     string            `mapstructure:"client_name"`
	Host           string            `mapstructure:"host"`
	Path           string            `mapstructure:"path"`
	BufferCapacity int               `mapstructure:"buffer_capacity"`
	StallTimeout   time.Duration     `mapstructure:"stall_timeout"`
	MaxReconnects  int               `mapstructure:"max_reconnects"`
	Autostart      bool              `mapstructure:"autostart"`
	Params         map[string]string `mapstructure:"params"`
}

// FiltersConfig seeds the filter registry. Each location is
// [sw-lon, sw-lat, ne-lon, ne-lat].
type FiltersConfig struct {
	Locations [][]float64 `mapstructure:"locations"`
}

// OutputsConfig selects where emitted outlets go.
type OutputsConfig struct {
	Console   ConsoleOutputConfig   `mapstructure:"console"`
	WebSocket WebSocketOutputConfig `mapstructure:"websocket"`
}

// ConsoleOutputConfig prints outlets to stdout.
type ConsoleOutputConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Raw     bool `mapstructure:"raw"`
}

// WebSocketOutputConfig broadcasts outlets on the HTTP listener.
type WebSocketOutputConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ChannelConfig configures one control channel.
type ChannelConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Token        string   `mapstructure:"token"`
	AllowedUsers []string `mapstructure:"allowed_users"`
	// FeedChatID receives assembled statuses when non-zero.
	FeedChatID int64 `mapstructure:"feed_chat_id"`
	// FeedRate caps feed messages per minute.
	FeedRate int `mapstructure:"feed_rate"`
}

// ScheduleConfig holds optional cron expressions opening and closing the stream.
type ScheduleConfig struct {
	Start string `mapstructure:"start"`
	Stop  string `mapstructure:"stop"`
}

// HTTPConfig configures the metrics and websocket listener. Empty Listen disables it.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

var defaultConfig = Config{
	Stream: StreamConfig{
		ClientName:     "geostream",
		Host:           "https://stream.twitter.com",
		Path:           "/1.1/statuses/filter.json",
		BufferCapacity: 100,
		StallTimeout:   90 * time.Second,
		MaxReconnects:  5,
		Autostart:      true,
	},
	Outputs: OutputsConfig{
		Console:   ConsoleOutputConfig{Enabled: true},
		WebSocket: WebSocketOutputConfig{Path: "/ws"},
	},
	Channels: map[string]ChannelConfig{
		defaultTelegramChannel: {FeedRate: 20},
	},
}

// defaultUserConfig is the bootstrap config written for first-time users.
// It only carries the user-editable essentials.
var defaultUserConfig = Config{
	Credentials: CredentialsConfig{
		ConsumerKey:    "$GEOSTREAM_CONSUMER_KEY",
		ConsumerSecret: "$GEOSTREAM_CONSUMER_SECRET",
		AccessToken:    "$GEOSTREAM_ACCESS_TOKEN",
		AccessSecret:   "$GEOSTREAM_ACCESS_SECRET",
	},
	Stream: StreamConfig{
		Autostart: true,
	},
	Filters: FiltersConfig{
		Locations: [][]float64{{-122.75, 36.8, -121.75, 37.8}},
	},
	Outputs: OutputsConfig{
		Console: ConsoleOutputConfig{Enabled: true},
	},
	Channels: map[string]ChannelConfig{
		defaultTelegramChannel: {Enabled: false, Token: "$TELEGRAM_BOT_TOKEN"},
	},
}

// HomeDir returns the geostream home directory.
// Uses GEOSTREAM_HOME env var if set, otherwise defaults to ~/.geostream.
func HomeDir() (string, error) {
	if dir := os.Getenv("GEOSTREAM_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return defaultHomePath(home), nil
}

// Load merges hardcoded defaults and config file values in that order.
// Config is always at $GEOSTREAM_HOME/config.toml.
func Load() (*Config, error) {
	homeDir, err := HomeDir()
	if err != nil {
		return nil, err
	}

	v, err := newViper(homeDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		expandEnvStringHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.DecodeHook = decodeHook
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.HomeDir = homeDir

	return &cfg, nil
}

// Write writes the merged configuration (defaults overlaid by user
// config) to w in TOML format.
func Write(w io.Writer) error {
	if w == nil {
		return errors.New("writer is required")
	}

	homeDir, err := HomeDir()
	if err != nil {
		return err
	}
	v, err := newViper(homeDir)
	if err != nil {
		return err
	}

	// Keep duration fields human-readable in generated TOML.
	v.Set("stream.stall_timeout", v.GetDuration("stream.stall_timeout").String())

	if err := v.WriteConfigTo(w); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DefaultUserConfigTOML renders the bootstrap user config as TOML.
func DefaultUserConfigTOML() (string, error) {
	v := viper.New()
	v.SetConfigType("toml")

	creds := defaultUserConfig.Credentials
	v.Set("credentials.consumer_key", creds.ConsumerKey)
	v.Set("credentials.consumer_secret", creds.ConsumerSecret)
	v.Set("credentials.access_token", creds.AccessToken)
	v.Set("credentials.access_secret", creds.AccessSecret)
	v.Set("stream.autostart", defaultUserConfig.Stream.Autostart)
	v.Set("filters.locations", defaultUserConfig.Filters.Locations)
	v.Set("outputs.console.enabled", defaultUserConfig.Outputs.Console.Enabled)
	for channel, ch := range defaultUserConfig.Channels {
		v.Set("channels."+channel+".enabled", ch.Enabled)
		v.Set("channels."+channel+".token", ch.Token)
	}

	var out bytes.Buffer
	if err := v.WriteConfigTo(&out); err != nil {
		return "", fmt.Errorf("write default user config: %w", err)
	}
	return out.String(), nil
}

func newViper(homeDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(homeConfigPath(homeDir))
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("credentials.consumer_key", "")
	v.SetDefault("credentials.consumer_secret", "")
	v.SetDefault("credentials.access_token", "")
	v.SetDefault("credentials.access_secret", "")

	v.SetDefault("stream.client_name", defaultConfig.Stream.ClientName)
	v.SetDefault("stream.host", defaultConfig.Stream.Host)
	v.SetDefault("stream.path", defaultConfig.Stream.Path)
	v.SetDefault("stream.buffer_capacity", defaultConfig.Stream.BufferCapacity)
	v.SetDefault("stream.stall_timeout", defaultConfig.Stream.StallTimeout)
	v.SetDefault("stream.max_reconnects", defaultConfig.Stream.MaxReconnects)
	v.SetDefault("stream.autostart", defaultConfig.Stream.Autostart)

	v.SetDefault("filters.locations", [][]float64{})

	v.SetDefault("outputs.console.enabled", defaultConfig.Outputs.Console.Enabled)
	v.SetDefault("outputs.console.raw", defaultConfig.Outputs.Console.Raw)
	v.SetDefault("outputs.websocket.enabled", defaultConfig.Outputs.WebSocket.Enabled)
	v.SetDefault("outputs.websocket.path", defaultConfig.Outputs.WebSocket.Path)

	telegram := defaultConfig.Channels[defaultTelegramChannel]
	v.SetDefault("channels.telegram.enabled", telegram.Enabled)
	v.SetDefault("channels.telegram.token", telegram.Token)
	v.SetDefault("channels.telegram.allowed_users", []string{})
	v.SetDefault("channels.telegram.feed_chat_id", telegram.FeedChatID)
	v.SetDefault("channels.telegram.feed_rate", telegram.FeedRate)

	v.SetDefault("schedule.start", "")
	v.SetDefault("schedule.stop", "")

	v.SetDefault("http.listen", "")
}

// TelegramChannel returns Telegram channel config with fallback defaults.
func (c *Config) TelegramChannel() ChannelConfig {
	if ch, ok := c.Channels[defaultTelegramChannel]; ok {
		return ch
	}
	return defaultConfig.Channels[defaultTelegramChannel]
}

func expandEnvStringHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.String {
			return data, nil
		}
		value, ok := data.(string)
		if !ok {
			return data, nil
		}
		return os.ExpandEnv(value), nil
	}
}
