// Package plan turns raw plan entries into validated steps.
package plan

import (
	"strings"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Step is one normalized plan entry.
type Step struct {
	Task string         `json:"task"`
	Args map[string]any `json:"args"`
}

// Normalize validates a raw plan entry. The entry must be a mapping with a
// non-empty string task and, if present, a mapping of args. The task is
// stored trimmed and absent args become an empty mapping.
func Normalize(raw any) (Step, error) {
	entry, ok := raw.(map[string]any)
	if !ok {
		return Step{}, errors.NewStepInvalidError("step must be a mapping")
	}

	task, ok := entry["task"].(string)
	if !ok || strings.TrimSpace(task) == "" {
		return Step{}, errors.NewStepInvalidError("task must be a non-empty string")
	}

	args := map[string]any{}
	if v, present := entry["args"]; present {
		m, ok := v.(map[string]any)
		if !ok {
			return Step{}, errors.NewStepInvalidError("args must be a mapping")
		}
		args = m
	}

	return Step{Task: strings.TrimSpace(task), Args: args}, nil
}
