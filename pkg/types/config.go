package types

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	APIVersionV1 = "v1"
	APIVersionV2 = "v2"

	DefaultMetricPrefix = "solax"
	DefaultTimeout      = 10
)

// SolaxConfig describes how to reach the Solax Cloud API.
type SolaxConfig struct {
	BaseURL      string `mapstructure:"base_url"`
	APIVersion   string `mapstructure:"api_version"`
	APIKey       string `mapstructure:"api_key"`
	SerialNumber string `mapstructure:"serial_number"`
	SiteID       string `mapstructure:"site_id"`
	// Timeout is in seconds.
	Timeout int `mapstructure:"timeout"`
}

// Validate ensures the configuration is usable.
func (c SolaxConfig) Validate() error {
	if err := validateURL(c.BaseURL); err != nil {
		return err
	}
	if c.APIVersion != APIVersionV1 && c.APIVersion != APIVersionV2 {
		return fmt.Errorf("api_version must be '%s' or '%s'", APIVersionV1, APIVersionV2)
	}
	if c.APIKey == "" {
		return errors.New("api_key must not be empty")
	}
	if c.SerialNumber == "" {
		return errors.New("serial_number must not be empty")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be a positive integer")
	}
	return nil
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c SolaxConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// CantaoConfig describes how normalized metrics are named and where they are
// pushed to.
type CantaoConfig struct {
	BaseURL       string            `mapstructure:"base_url"`
	APIToken      string            `mapstructure:"api_token"`
	MetricPrefix  string            `mapstructure:"metric_prefix"`
	MetricMapping map[string]string `mapstructure:"metric_mapping"`
	// IgnoredFields are source keys (case-insensitive) that are never
	// forwarded.
	IgnoredFields []string `mapstructure:"ignored_fields"`
	// DecimalPrecision rounds float values when set. 0 turns them into
	// integers.
	DecimalPrecision *int `mapstructure:"decimal_precision"`
}

// Validate ensures the configuration is usable. Push settings are optional.
func (c CantaoConfig) Validate() error {
	if c.BaseURL != "" {
		if err := validateURL(c.BaseURL); err != nil {
			return err
		}
	}
	if strings.TrimSpace(c.MetricPrefix) == "" {
		return errors.New("metric_prefix must not be empty")
	}
	if c.DecimalPrecision != nil && *c.DecimalPrecision < 0 {
		return errors.New("decimal_precision must not be negative")
	}
	return nil
}

// IsPushEnabled reports whether both the endpoint and the token are set.
func (c CantaoConfig) IsPushEnabled() bool {
	return c.BaseURL != "" && c.APIToken != ""
}

// MQTTConfig describes the optional MQTT mirror for pushed metrics.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	QoS      int    `mapstructure:"qos"`
	Retained bool   `mapstructure:"retained"`
}

// Enabled reports whether a broker was configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// Validate ensures the configuration is usable when enabled.
func (c MQTTConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if err := validateURL(c.Broker); err != nil {
		return fmt.Errorf("mqtt broker: %w", err)
	}
	if c.Topic == "" {
		return errors.New("mqtt topic must not be empty")
	}
	if c.QoS < 0 || c.QoS > 2 {
		return errors.New("mqtt qos must be 0, 1 or 2")
	}
	return nil
}

// AppConfig is the full configuration file.
type AppConfig struct {
	Solax  SolaxConfig  `mapstructure:"solax"`
	Cantao CantaoConfig `mapstructure:"cantao"`
	MQTT   MQTTConfig   `mapstructure:"mqtt"`
}

// Validate validates every section.
func (c AppConfig) Validate() error {
	if err := c.Solax.Validate(); err != nil {
		return fmt.Errorf("solax: %w", err)
	}
	if err := c.Cantao.Validate(); err != nil {
		return fmt.Errorf("cantao: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid URL: %s", raw)
	}
	return nil
}
