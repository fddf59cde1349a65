// Package config handles toolgate settings using Viper.
//
// Values resolve in the usual order: explicit flags (applied by the caller),
// TOOLGATE_* environment variables, the config file, then defaults.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	gateerrors "github.com/felixgeelhaar/toolgate/internal/errors"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TOOLGATE"

// Config holds the resolved settings.
type Config struct {
	Audit     AuditConfig     `mapstructure:"audit"`
	Verify    VerifyConfig    `mapstructure:"verify"`
	Log       LogConfig       `mapstructure:"log"`
	Bundle    BundleConfig    `mapstructure:"bundle"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Dir      string `mapstructure:"dir"`
	HMACKey  string `mapstructure:"hmac_key"`
	KeysDir  string `mapstructure:"keys_dir"`
	KeysJSON string `mapstructure:"keys_json"`
}

// VerifyConfig holds evidence thresholds.
type VerifyConfig struct {
	MinCoverage     float64 `mapstructure:"min_coverage"`
	MinSources      int     `mapstructure:"min_sources"`
	RequireEvidence bool    `mapstructure:"require_evidence"`
}

// LogConfig holds diagnostic logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// BundleConfig holds run bundle settings.
type BundleConfig struct {
	Dir         string   `mapstructure:"dir"`
	SignKey     string   `mapstructure:"sign_key"`
	TrustedKeys []string `mapstructure:"trusted_keys"`
}

// TelemetryConfig holds OpenTelemetry export settings. Export is enabled
// whenever an endpoint is configured.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// FlagKeys maps CLI flag names to the settings they override.
var FlagKeys = map[string]string{
	"audit-dir":    "audit.dir",
	"hmac":         "audit.hmac_key",
	"keys-dir":     "audit.keys_dir",
	"keys-json":    "audit.keys_json",
	"min-coverage": "verify.min_coverage",
	"min-sources":  "verify.min_sources",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"bundle-dir":   "bundle.dir",
	"sign-key":     "bundle.sign_key",
	"trusted-key":  "bundle.trusted_keys",

	"otlp-endpoint": "telemetry.endpoint",
}

// Load reads configuration from file and environment. An empty path looks
// for toolgate.yaml in the working directory and in ~/.toolgate; a missing
// file there is not an error.
func Load(configPath string) (*Config, error) {
	return LoadWithFlags(configPath, nil)
}

// LoadWithFlags is Load with the flags in flags bound through FlagKeys. A flag
// overrides every other source only when it was set explicitly.
func LoadWithFlags(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := New()
	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("toolgate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".toolgate"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// Defaults and environment only.
		case errors.Is(err, fs.ErrNotExist):
			return nil, gateerrors.NewFileNotFoundError(configPath)
		default:
			return nil, gateerrors.NewFileUnmarshalError(v.ConfigFileUsed(), "config", err)
		}
	}

	return Decode(v)
}

// New returns a Viper instance with defaults and environment bindings set.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Short aliases for the settings most often passed through CI secrets.
	_ = v.BindEnv("audit.hmac_key", EnvPrefix+"_AUDIT_HMAC_KEY", EnvPrefix+"_HMAC_KEY")
	_ = v.BindEnv("audit.keys_json", EnvPrefix+"_AUDIT_KEYS_JSON", "KEYS_JSON")
	return v
}

// Decode unmarshals v into a Config and checks its thresholds.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, gateerrors.Wrap(gateerrors.ErrCodeFileUnmarshal, "failed to decode configuration", err)
	}
	if !(cfg.Verify.MinCoverage >= 0 && cfg.Verify.MinCoverage <= 1) {
		return nil, gateerrors.New(gateerrors.ErrCodeConfigInvalid, "verify.min_coverage must be between 0 and 1")
	}
	if cfg.Verify.MinSources < 0 {
		return nil, gateerrors.New(gateerrors.ErrCodeConfigInvalid, "verify.min_sources must not be negative")
	}
	if !(cfg.Telemetry.SampleRate >= 0 && cfg.Telemetry.SampleRate <= 1) {
		return nil, gateerrors.New(gateerrors.ErrCodeConfigInvalid, "telemetry.sample_rate must be between 0 and 1")
	}
	if cfg.Telemetry.Endpoint != "" {
		cfg.Telemetry.Enabled = true
	}
	cfg.Bundle.SignKey = expandHome(cfg.Bundle.SignKey)
	cfg.Audit.KeysDir = expandHome(cfg.Audit.KeysDir)
	return &cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("audit.dir", ".")
	v.SetDefault("audit.hmac_key", "")
	v.SetDefault("audit.keys_dir", "keys")
	v.SetDefault("audit.keys_json", "")
	v.SetDefault("verify.min_coverage", 0.75)
	v.SetDefault("verify.min_sources", 2)
	v.SetDefault("verify.require_evidence", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("bundle.dir", ".")
	v.SetDefault("bundle.sign_key", "")
	v.SetDefault("bundle.trusted_keys", []string{})
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.sample_rate", 1.0)
	v.SetDefault("telemetry.environment", "development")
}

func expandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
