package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/toolgate/internal/errors"
	"github.com/felixgeelhaar/toolgate/internal/log"
	"github.com/felixgeelhaar/toolgate/internal/tool"
)

// Plugin kinds accepted in a manifest.
const (
	KindProcess = "legacy_subprocess"
	KindHTTP    = "meta_http"
)

// Descriptor is one plugin entry of a manifest.
type Descriptor struct {
	Kind string `yaml:"kind" json:"kind"`
	Name string `yaml:"name" json:"name"`

	// Cmd is required for legacy_subprocess plugins.
	Cmd []string          `yaml:"cmd,omitempty" json:"cmd,omitempty"`
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	// Endpoint is required for meta_http plugins.
	Endpoint     string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	AuthToken    string            `yaml:"auth_token,omitempty" json:"auth_token,omitempty"`
	AuthTokenEnv string            `yaml:"auth_token_env,omitempty" json:"auth_token_env,omitempty"`

	// Timeout is in seconds; zero means DefaultTimeout.
	Timeout float64 `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Manifest lists the plugins to register for a run.
type Manifest struct {
	Plugins []Descriptor `yaml:"plugins" json:"plugins"`
}

// LoadManifest reads a YAML (.yaml, .yml) or JSON plugin manifest and
// validates every entry.
func LoadManifest(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read plugin manifest %s", path), err)
	}

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, errors.NewFileUnmarshalError(path, "YAML", err)
		}
	default:
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.NewFileUnmarshalError(path, "JSON", err)
		}
	}

	for i, d := range m.Plugins {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("plugins[%d]: %w", i, err)
		}
	}
	return m.Plugins, nil
}

// Validate checks that d names a known kind and carries its connection
// parameters.
func (d Descriptor) Validate() error {
	if d.Kind == "" || d.Name == "" {
		return errors.NewPluginManifestError("plugin entry requires 'kind' and 'name'")
	}
	if d.Timeout < 0 {
		return errors.NewPluginManifestError(fmt.Sprintf("plugin %s: timeout must not be negative", d.Name))
	}
	switch d.Kind {
	case KindProcess:
		if len(d.Cmd) == 0 || d.Cmd[0] == "" {
			return errors.NewPluginManifestError(fmt.Sprintf("plugin %s: legacy_subprocess requires 'cmd'", d.Name))
		}
	case KindHTTP:
		if d.Endpoint == "" {
			return errors.NewPluginManifestError(fmt.Sprintf("plugin %s: meta_http requires 'endpoint'", d.Name))
		}
	default:
		return errors.NewPluginKindUnknownError(d.Kind)
	}
	return nil
}

func (d Descriptor) timeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(d.Timeout * float64(time.Second))
}

func (d Descriptor) env() []string {
	keys := make([]string, 0, len(d.Env))
	for k := range d.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+d.Env[k])
	}
	return env
}

func (d Descriptor) authToken() string {
	if d.AuthToken != "" {
		return d.AuthToken
	}
	if d.AuthTokenEnv != "" {
		return os.Getenv(d.AuthTokenEnv)
	}
	return ""
}

// Build instantiates the adapter described by d.
func Build(d Descriptor, logger *log.Logger) (Adapter, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	switch d.Kind {
	case KindProcess:
		return NewProcess(d.Name, ProcessConfig{
			Cmd:     d.Cmd,
			Timeout: d.timeout(),
			Env:     d.env(),
			Logger:  logger,
		}), nil
	default:
		return NewHTTP(d.Name, HTTPConfig{
			Endpoint:  d.Endpoint,
			Timeout:   d.timeout(),
			Headers:   d.Headers,
			AuthToken: d.authToken(),
			Logger:    logger,
		}), nil
	}
}

// RegisterAll builds every descriptor and registers it in reg under its name.
// It returns the registered names in manifest order.
func RegisterAll(reg *tool.Registry, descs []Descriptor, logger *log.Logger) ([]string, error) {
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		a, err := Build(d, logger)
		if err != nil {
			return names, err
		}
		if err := reg.Register(d.Name, AsHandler(a)); err != nil {
			return names, err
		}
		names = append(names, d.Name)
	}
	return names, nil
}
