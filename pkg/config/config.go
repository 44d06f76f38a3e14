// Package config loads the TOML configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/levenlabs/go-lflag"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/404GamerNotFound/cantao-solax-add-on/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. CANTAO_SOLAX_SOLAX_API_KEY.
const EnvPrefix = "CANTAO_SOLAX"

// ErrMissingSolax is returned when the file has no [solax] table.
var ErrMissingSolax = errors.New("missing [solax] section in configuration")

// Loader resolves the --config flag.
type Loader struct {
	path string
}

// Configured registers the --config flag.
func Configured() *Loader {
	l := &Loader{}
	path := lflag.String("config", "config.toml", "Path to the configuration TOML file")
	lflag.Do(func() {
		l.path = *path
	})
	return l
}

// Path is the configured file path.
func (l *Loader) Path() string {
	return l.path
}

// Load reads and validates the configured file.
func (l *Loader) Load() (*types.AppConfig, error) {
	return Load(l.path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("solax.base_url", "")
	v.SetDefault("solax.api_version", types.APIVersionV1)
	v.SetDefault("solax.api_key", "")
	v.SetDefault("solax.serial_number", "")
	v.SetDefault("solax.site_id", "")
	v.SetDefault("solax.timeout", types.DefaultTimeout)

	v.SetDefault("cantao.base_url", "")
	v.SetDefault("cantao.api_token", "")
	v.SetDefault("cantao.metric_prefix", types.DefaultMetricPrefix)
	v.SetDefault("cantao.ignored_fields", []string{})

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "cantao-solax")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic", "cantao/solax/metrics")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)
}

// Load reads the TOML file at path, applies environment overrides and
// validates the result.
func Load(path string) (*types.AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// no default, so it has to be bound for Unmarshal to see it
	if err := v.BindEnv("cantao.decimal_precision"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if !v.InConfig("solax") {
		return nil, ErrMissingSolax
	}

	var cfg types.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	// viper lowercases map keys but Solax field names are case-sensitive
	mapping, err := readMetricMapping(path)
	if err != nil {
		return nil, err
	}
	cfg.Cantao.MetricMapping = mapping

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func readMetricMapping(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var file struct {
		Cantao struct {
			MetricMapping map[string]string `toml:"metric_mapping"`
		} `toml:"cantao"`
	}
	if err := toml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("failed to decode metric_mapping in %s: %w", path, err)
	}
	if file.Cantao.MetricMapping == nil {
		return map[string]string{}, nil
	}
	return file.Cantao.MetricMapping, nil
}
