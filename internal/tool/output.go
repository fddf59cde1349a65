// Package tool defines the uniform handler contract every named tool follows,
// whether it runs in process or behind an adapter, and the per-run registry
// that resolves tool names to handlers.
package tool

// Evidence is the justification a tool attaches to a successful output.
type Evidence struct {
	// Coverage is kept as the raw decoded value (normally a float64) so the
	// verifier can tell a missing value from a malformed one.
	Coverage any      `json:"coverage"`
	Sources  []string `json:"sources"`
}

// IsEmpty reports whether e carries no coverage and no sources.
func (e *Evidence) IsEmpty() bool {
	return e == nil || (e.Coverage == nil && len(e.Sources) == 0)
}

// Map renders e for audit details.
func (e *Evidence) Map() map[string]any {
	if e == nil {
		return nil
	}
	sources := e.Sources
	if sources == nil {
		sources = []string{}
	}
	return map[string]any{"coverage": e.Coverage, "sources": sources}
}

// Output is the result of one tool invocation.
type Output struct {
	OK       bool      `json:"ok"`
	Result   any       `json:"result,omitempty"`
	Evidence *Evidence `json:"evidence,omitempty"`
	Reasons  []string  `json:"reasons,omitempty"`
}

// Fail returns a rejected output carrying reasons.
func Fail(reasons ...string) Output {
	return Output{OK: false, Reasons: reasons}
}

// Succeed returns an accepted output.
func Succeed(result any, evidence *Evidence) Output {
	return Output{OK: true, Result: result, Evidence: evidence}
}
