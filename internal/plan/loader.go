package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Load reads a plan from a JSON or YAML (.yaml, .yml) file. The document must
// be a list; entries are returned raw so malformed ones can be recorded and
// skipped at run time instead of failing the whole plan.
func Load(path string) ([]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read plan %s", path), err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, errors.NewFileUnmarshalError(path, "YAML", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errors.NewFileUnmarshalError(path, "JSON", err)
		}
	}

	steps, ok := doc.([]any)
	if !ok {
		return nil, errors.NewPlanInvalidError("plan must be a list")
	}
	return steps, nil
}

// Default is the demo plan used when no plan file is given.
func Default() []any {
	return []any{
		map[string]any{"task": "legacy", "args": map[string]any{"op": "search", "q": "specs for component X"}},
		map[string]any{"task": "meta", "args": map[string]any{"op": "extract", "url": "https://example.org/doc"}},
		map[string]any{"task": "summarize", "args": map[string]any{"text": "Combine results here..."}},
	}
}

// Fingerprint returns the blake3 hash of the plan's JSON encoding.
func Fingerprint(steps []any) (string, error) {
	data, err := json.Marshal(steps)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode plan", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(data); err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
