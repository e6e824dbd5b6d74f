// Package config loads the configuration of the streaming client.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"sigs.k8s.io/yaml"

	"ocm.software/open-component-model/streaming/wearable"
)

const (
	ConfigType   = "streaming.config.ocm.software"
	ConfigTypeV1 = "v1"
)

// Config holds the settings of a streaming client.
type Config struct {
	Type      string          `json:"type"`
	Endpoints EndpointsConfig `json:"endpoints"`
	// Budget is the number of payloads fetched at the same time.
	Budget   int            `json:"budget"`
	Decode   DecodeConfig   `json:"decode"`
	Cache    CacheConfig    `json:"cache"`
	HTTP     HTTPConfig     `json:"http"`
	Embedded EmbeddedConfig `json:"embedded"`
	Manifest ManifestConfig `json:"manifest"`
	Loop     LoopConfig     `json:"loop"`
}

type EndpointsConfig struct {
	Content      string `json:"content"`
	AssetBundles string `json:"assetBundles"`
	Platform     string `json:"platform"`
}

type DecodeConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

type CacheConfig struct {
	IdleTTL     Duration `json:"idleTTL"`
	FailureTTL  Duration `json:"failureTTL"`
	FailureSize int      `json:"failureSize"`
}

type HTTPConfig struct {
	Timeout   Duration `json:"timeout"`
	UserAgent string   `json:"userAgent"`
	MaxBytes  int64    `json:"maxBytes"`
}

// EmbeddedConfig selects the pointers whose bundles are read from Directory.
type EmbeddedConfig struct {
	Patterns  []string `json:"patterns"`
	Directory string   `json:"directory,omitempty"`
}

type ManifestConfig struct {
	// MinimumVersion rejects manifests built by older bundle converters.
	MinimumVersion string `json:"minimumVersion,omitempty"`
}

type LoopConfig struct {
	Interval Duration `json:"interval"`
}

// Duration is a time.Duration written as a string such as "5m".
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Type: ConfigType + "/" + ConfigTypeV1,
		Endpoints: EndpointsConfig{
			Content:      "https://peer.decentraland.org/content",
			AssetBundles: "https://ab-cdn.decentraland.org",
			Platform:     "_linux",
		},
		Budget: 8,
		Decode: DecodeConfig{Workers: 4, QueueSize: 100},
		Cache: CacheConfig{
			IdleTTL:     Duration(5 * time.Minute),
			FailureTTL:  Duration(5 * time.Minute),
			FailureSize: 256,
		},
		HTTP: HTTPConfig{
			Timeout:   Duration(30 * time.Second),
			UserAgent: "wearablectl",
			MaxBytes:  64 << 20,
		},
		Embedded: EmbeddedConfig{
			Patterns: []string{"urn:decentraland:off-chain:base-avatars:*"},
		},
		Manifest: ManifestConfig{MinimumVersion: "v16"},
		Loop:     LoopConfig{Interval: Duration(16 * time.Millisecond)},
	}
}

// Load reads a YAML or JSON configuration file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data on top of Default and validates the result.
// Unknown fields are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Type != ConfigType+"/"+ConfigTypeV1 {
		errs = append(errs, fmt.Errorf("unsupported type %q", c.Type))
	}
	if c.Endpoints.Content == "" {
		errs = append(errs, errors.New("endpoints.content is required"))
	}
	if c.Endpoints.AssetBundles == "" {
		errs = append(errs, errors.New("endpoints.assetBundles is required"))
	}
	if c.Budget <= 0 {
		errs = append(errs, fmt.Errorf("budget must be positive, got %d", c.Budget))
	}
	if c.Decode.Workers < 0 || c.Decode.QueueSize < 0 {
		errs = append(errs, errors.New("decode workers and queue size must not be negative"))
	}
	if c.Loop.Interval <= 0 {
		errs = append(errs, errors.New("loop.interval must be positive"))
	}
	if _, err := c.MinimumManifestVersion(); err != nil {
		errs = append(errs, err)
	}
	if _, err := wearable.NewPointerMatcher(c.Embedded.Patterns...); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// MinimumManifestVersion parses Manifest.MinimumVersion. It returns nil when unset.
func (c *Config) MinimumManifestVersion() (*semver.Version, error) {
	if c.Manifest.MinimumVersion == "" {
		return nil, nil
	}
	v, err := semver.NewVersion(c.Manifest.MinimumVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest.minimumVersion %q: %w", c.Manifest.MinimumVersion, err)
	}
	return v, nil
}
