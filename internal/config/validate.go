package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/neoclaw-ai/geostream/internal/buffer"
	"github.com/neoclaw-ai/geostream/internal/geo"
	"github.com/neoclaw-ai/geostream/internal/scheduler"
)

// Validatable is implemented by config sections that can self-validate.
type Validatable interface {
	Validate() error
}

// ValidationReport carries non-fatal startup findings.
type ValidationReport struct {
	Warnings []string
}

// Complete reports whether all four credential values are set.
func (c CredentialsConfig) Complete() bool {
	return c.ConsumerKey != "" && c.ConsumerSecret != "" && c.AccessToken != "" && c.AccessSecret != ""
}

// Validate accepts any credentials. Bad values surface as HTTP 401 on start.
func (c CredentialsConfig) Validate() error {
	return nil
}

func (c StreamConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ClientName) == "" {
		errs = append(errs, errors.New("client_name is required"))
	}
	if u, err := url.Parse(c.Host); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("host %q must be an http(s) URL", c.Host))
	}
	if !strings.HasPrefix(c.Path, "/") {
		errs = append(errs, fmt.Errorf("path %q must start with /", c.Path))
	}
	if c.BufferCapacity <= 0 || c.BufferCapacity > buffer.DefaultCapacity {
		errs = append(errs, fmt.Errorf("buffer_capacity must be between 1 and %d", buffer.DefaultCapacity))
	}
	if c.StallTimeout <= 0 {
		errs = append(errs, errors.New("stall_timeout must be > 0"))
	}
	if c.MaxReconnects < 0 {
		errs = append(errs, errors.New("max_reconnects must be >= 0"))
	}
	return errors.Join(errs...)
}

// Boxes converts the configured locations into bounding boxes.
func (c FiltersConfig) Boxes() ([]geo.BoundingBox, error) {
	boxes := make([]geo.BoundingBox, 0, len(c.Locations))
	for i, loc := range c.Locations {
		if len(loc) != 4 {
			return nil, fmt.Errorf("locations[%d]: expected 4 numbers, got %d", i, len(loc))
		}
		box, err := geo.NewBoundingBox(loc[0], loc[1], loc[2], loc[3])
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %w", i, err)
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

func (c FiltersConfig) Validate() error {
	_, err := c.Boxes()
	return err
}

func (c OutputsConfig) Validate() error {
	var errs []error
	if c.WebSocket.Enabled && !strings.HasPrefix(c.WebSocket.Path, "/") {
		errs = append(errs, fmt.Errorf("websocket.path %q must start with /", c.WebSocket.Path))
	}
	return errors.Join(errs...)
}

func (c ChannelConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if c.Token == "" {
		errs = append(errs, errors.New("token is required when enabled=true"))
	}
	if c.FeedChatID != 0 && c.FeedRate <= 0 {
		errs = append(errs, errors.New("feed_rate must be > 0 when feed_chat_id is set"))
	}
	return errors.Join(errs...)
}

func (c ScheduleConfig) Validate() error {
	var errs []error
	if c.Start != "" {
		if err := scheduler.ValidateCron(c.Start); err != nil {
			errs = append(errs, fmt.Errorf("start: %w", err))
		}
	}
	if c.Stop != "" {
		if err := scheduler.ValidateCron(c.Stop); err != nil {
			errs = append(errs, fmt.Errorf("stop: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Window converts the schedule into scheduler jobs.
func (c ScheduleConfig) Window() scheduler.Window {
	return scheduler.Window{Start: c.Start, Stop: c.Stop}
}

func (c HTTPConfig) Validate() error {
	if c.Listen == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen %q: %w", c.Listen, err)
	}
	return nil
}

// Validate checks every section and joins all failures.
func (cfg *Config) Validate() error {
	var errs []error

	sections := []struct {
		name    string
		section Validatable
	}{
		{"credentials", cfg.Credentials},
		{"stream", cfg.Stream},
		{"filters", cfg.Filters},
		{"outputs", cfg.Outputs},
		{"schedule", cfg.Schedule},
		{"http", cfg.HTTP},
	}
	for _, s := range sections {
		if err := s.section.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	for name, chCfg := range cfg.Channels {
		if err := chCfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s: %w", name, err))
		}
	}
	if cfg.Outputs.WebSocket.Enabled && cfg.HTTP.Listen == "" {
		errs = append(errs, errors.New("outputs.websocket: requires http.listen"))
	}
	return errors.Join(errs...)
}

// ValidateStartup validates startup configuration and returns warning messages.
func ValidateStartup(cfg *Config) (*ValidationReport, error) {
	report := &ValidationReport{}

	if !cfg.Credentials.Complete() {
		report.Warnings = append(report.Warnings, "credentials are incomplete; set them before starting the stream")
	}
	if len(cfg.Filters.Locations) == 0 {
		report.Warnings = append(report.Warnings, "filters.locations is empty; add a location before starting the stream")
	}
	if ch, ok := cfg.Channels[defaultTelegramChannel]; ok && ch.Enabled && len(ch.AllowedUsers) == 0 {
		report.Warnings = append(report.Warnings, "channels.telegram.allowed_users is empty")
	}
	if !cfg.Outputs.Console.Enabled && !cfg.Outputs.WebSocket.Enabled && cfg.TelegramChannel().FeedChatID == 0 {
		report.Warnings = append(report.Warnings, "no outputs are enabled; emitted records are discarded")
	}

	if err := cfg.Validate(); err != nil {
		return report, err
	}
	return report, nil
}
