package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Load reads a policy from a YAML (.yaml, .yml) or JSON file. Fields the
// file omits take their defaults; an empty file is an empty allowlist.
func Load(path string) (Config, Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, Meta{}, errors.NewFileNotFoundError(path)
		}
		return Config{}, Meta{}, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read policy %s", path), err)
	}

	cfg, err := Parse(data, formatFor(path))
	if err != nil {
		return Config{}, Meta{}, err
	}

	fp, err := Fingerprint(cfg)
	if err != nil {
		return Config{}, Meta{}, err
	}
	return cfg, Meta{Path: path, Fingerprint: fp}, nil
}

// Parse decodes and validates a policy document in the given format
// ("yaml" or "json").
func Parse(data []byte, format string) (Config, error) {
	var file policyFile
	if len(strings.TrimSpace(string(data))) > 0 {
		var err error
		switch format {
		case "yaml":
			err = yaml.Unmarshal(data, &file)
		default:
			err = json.Unmarshal(data, &file)
		}
		if err != nil {
			return Config{}, errors.NewFileUnmarshalError("policy", strings.ToUpper(format), err)
		}
	}

	cfg := file.config()
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects negative ceilings and budgets and a non-finite max_sec.
func Validate(cfg Config) error {
	if cfg.MaxSteps < 0 {
		return errors.NewPolicyInvalidError(fmt.Sprintf("max_steps is negative (%d)", cfg.MaxSteps))
	}
	if math.IsNaN(cfg.MaxSeconds) || math.IsInf(cfg.MaxSeconds, 0) {
		return errors.NewPolicyInvalidError(fmt.Sprintf("max_sec must be a finite number (%g)", cfg.MaxSeconds))
	}
	if cfg.MaxSeconds < 0 {
		return errors.NewPolicyInvalidError(fmt.Sprintf("max_sec is negative (%g)", cfg.MaxSeconds))
	}
	tasks := make([]string, 0, len(cfg.Budgets))
	for task := range cfg.Budgets {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)
	for _, task := range tasks {
		if cfg.Budgets[task] < 0 {
			return errors.NewPolicyInvalidError(fmt.Sprintf("budgets.%s is negative (%d)", task, cfg.Budgets[task]))
		}
	}
	return nil
}

// Default is the policy used when no policy file is given.
func Default() (Config, Meta) {
	cfg := Config{
		Allowlist:  []string{"legacy", "meta", "summarize", "echo"},
		MaxSteps:   16,
		MaxSeconds: 10,
		Budgets:    map[string]int{"legacy": 5, "meta": 5, "summarize": 5},
	}
	fp, _ := Fingerprint(cfg)
	return cfg, Meta{Fingerprint: fp}
}

// Fingerprint hashes the normalized policy with blake3. The allowlist is
// treated as a set, so reordering it does not change the fingerprint.
func Fingerprint(cfg Config) (string, error) {
	allow := append([]string(nil), cfg.Allowlist...)
	sort.Strings(allow)
	norm := cfg
	norm.Allowlist = allow

	data, err := json.Marshal(norm)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode policy", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(data); err != nil {
		return "", fmt.Errorf("hash policy: %w", err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

func formatFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}
