// Package config loads and validates the trsync run configuration.
//
// Configuration is an explicit object threaded into the components that need
// it; there is no ambient global state. Validation runs before any network
// or filesystem activity so that an unknown output format fails fast.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/trsync/errors"
	"github.com/c360/trsync/pkg/retry"
)

// Format selects the output serialization
type Format string

// Supported output formats
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Config is the complete run configuration
type Config struct {
	API         APIConfig         `yaml:"api"`
	Output      OutputConfig      `yaml:"output"`
	Retry       RetryConfig       `yaml:"retry"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// APIConfig describes the brokerage endpoints and the client descriptor sent
// in the connect handshake
type APIConfig struct {
	WebsocketURL    string     `yaml:"websocket_url"`
	RestURL         string     `yaml:"rest_url"`
	ProtocolVersion int        `yaml:"protocol_version"`
	Client          ClientInfo `yaml:"client"`
}

// ClientInfo is the locale/platform descriptor for the connect handshake
type ClientInfo struct {
	Locale          string `yaml:"locale"           json:"locale"`
	PlatformID      string `yaml:"platform_id"      json:"platformId"`
	PlatformVersion string `yaml:"platform_version" json:"platformVersion"`
	ClientID        string `yaml:"client_id"        json:"clientId"`
	ClientVersion   string `yaml:"client_version"   json:"clientVersion"`
}

// OutputConfig controls artifact serialization
type OutputConfig struct {
	Format         Format `yaml:"format"`
	Folder         string `yaml:"folder"`
	ExtractDetails bool   `yaml:"extract_details"`
}

// RetryConfig tunes the backoff applied around connect and subscribe
type RetryConfig struct {
	MaxAttempts  int      `yaml:"max_attempts"`
	InitialDelay Duration `yaml:"initial_delay"`
	MaxDelay     Duration `yaml:"max_delay"`
}

// CredentialsConfig feeds the login collaborator. A pre-acquired session
// token short-circuits the interactive flow entirely.
type CredentialsConfig struct {
	PhoneNumber string `yaml:"phone_number"`
	PIN         string `yaml:"pin"`
	SessionToken string `yaml:"session_token"`
}

// Duration is a time.Duration that unmarshals from YAML strings like "250ms"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			WebsocketURL:    "wss://api.traderepublic.com",
			RestURL:         "https://api.traderepublic.com",
			ProtocolVersion: 31,
			Client: ClientInfo{
				Locale:          "fr",
				PlatformID:      "webtrading",
				PlatformVersion: "safari - 18.3.0",
				ClientID:        "app.traderepublic.com",
				ClientVersion:   "3.151.3",
			},
		},
		Output: OutputConfig{
			Format: FormatCSV,
			Folder: "export",
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: Duration(250 * time.Millisecond),
			MaxDelay:     Duration(5 * time.Second),
		},
	}
}

// Load reads a YAML config file, layering it over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", "read file")
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "parse yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, normalizing the output format
func (c *Config) Validate() error {
	c.Output.Format = Format(strings.ToLower(string(c.Output.Format)))
	switch c.Output.Format {
	case FormatJSON, FormatCSV:
	default:
		return errors.WrapFatal(
			fmt.Errorf("%w: %q (expected json or csv)", errors.ErrUnknownFormat, c.Output.Format),
			"Config", "Validate", "check output format")
	}

	if c.Output.Folder == "" {
		return errors.WrapFatal(
			fmt.Errorf("%w: output.folder", errors.ErrMissingConfig),
			"Config", "Validate", "check output folder")
	}

	if c.API.WebsocketURL == "" {
		return errors.WrapFatal(
			fmt.Errorf("%w: api.websocket_url", errors.ErrMissingConfig),
			"Config", "Validate", "check websocket url")
	}

	if c.API.ProtocolVersion <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: api.protocol_version must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check protocol version")
	}

	if c.Retry.MaxAttempts < 1 {
		return errors.WrapFatal(
			fmt.Errorf("%w: retry.max_attempts must be at least 1", errors.ErrInvalidConfig),
			"Config", "Validate", "check retry attempts")
	}

	return nil
}

// RetryPolicy converts the retry tuning into the retry package's config
func (c *Config) RetryPolicy() retry.Config {
	return retry.Config{
		MaxAttempts:  c.Retry.MaxAttempts,
		InitialDelay: c.Retry.InitialDelay.Std(),
		MaxDelay:     c.Retry.MaxDelay.Std(),
		Multiplier:   2.0,
		AddJitter:    true,
	}
}
