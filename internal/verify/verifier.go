// Package verify decides, after a tool has run, whether its output carries
// enough evidence to be trusted. It can only downgrade an output.
package verify

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/felixgeelhaar/toolgate/internal/plan"
	"github.com/felixgeelhaar/toolgate/internal/tool"
)

// Defaults used when no option overrides them.
const (
	DefaultMinCoverage = 0.60
	DefaultMinSources  = 1

	// legacyCoverage is assumed when evidence omits coverage entirely.
	legacyCoverage = 0.6
)

// Contract checks the shape of a task's result. It returns a reason when the
// result is unacceptable and "" otherwise.
type Contract func(result any) string

// SummaryContract requires a mapping with a "summary" key.
func SummaryContract(result any) string {
	m, ok := result.(map[string]any)
	if !ok {
		return "bad summary shape"
	}
	if _, ok := m["summary"]; !ok {
		return "bad summary shape"
	}
	return ""
}

// Verifier applies evidence thresholds and per-task result contracts.
type Verifier struct {
	requireEvidence bool
	minCoverage     float64
	minSources      int
	contracts       map[string]Contract
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithRequireEvidence toggles rejection of successful outputs without evidence.
func WithRequireEvidence(require bool) Option {
	return func(v *Verifier) { v.requireEvidence = require }
}

// WithMinCoverage sets the minimum accepted coverage.
func WithMinCoverage(min float64) Option {
	return func(v *Verifier) { v.minCoverage = min }
}

// WithMinSources sets the minimum number of evidence sources.
func WithMinSources(min int) Option {
	return func(v *Verifier) { v.minSources = min }
}

// WithContract registers c for task, replacing any existing contract.
// A nil contract removes it.
func WithContract(task string, c Contract) Option {
	return func(v *Verifier) {
		if c == nil {
			delete(v.contracts, task)
			return
		}
		v.contracts[task] = c
	}
}

// New returns a verifier with the summarize contract installed.
func New(opts ...Option) *Verifier {
	v := &Verifier{
		requireEvidence: true,
		minCoverage:     DefaultMinCoverage,
		minSources:      DefaultMinSources,
		contracts:       map[string]Contract{"summarize": SummaryContract},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MinCoverage returns the configured coverage threshold.
func (v *Verifier) MinCoverage() float64 { return v.minCoverage }

// MinSources returns the configured source threshold.
func (v *Verifier) MinSources() int { return v.minSources }

// Check returns out unchanged when it is acceptable or already rejected, and
// a rejection carrying a single reason otherwise. Rejections never carry the
// original result or evidence.
func (v *Verifier) Check(step plan.Step, out tool.Output) tool.Output {
	if !out.OK {
		return out
	}

	ev := out.Evidence
	if v.requireEvidence && ev.IsEmpty() {
		return tool.Fail("missing evidence")
	}

	cov := coverage(ev)
	if !(cov >= v.minCoverage) {
		return tool.Fail(fmt.Sprintf("coverage %.2f < %.2f", cov, v.minCoverage))
	}

	sources := 0
	if ev != nil {
		sources = len(ev.Sources)
	}
	if sources < v.minSources {
		return tool.Fail(fmt.Sprintf("sources %d < %d", sources, v.minSources))
	}

	if contract, ok := v.contracts[step.Task]; ok {
		if reason := contract(out.Result); reason != "" {
			return tool.Fail(reason)
		}
	}
	return out
}

// coverage reads the evidence coverage: absent evidence counts as 0, an
// absent value as the legacy default, anything non-numeric or non-finite
// as 0.
func coverage(ev *tool.Evidence) float64 {
	if ev == nil {
		return 0
	}
	var f float64
	switch c := ev.Coverage.(type) {
	case nil:
		return legacyCoverage
	case float64:
		f = c
	case float32:
		f = float64(c)
	case int:
		f = float64(c)
	case int64:
		f = float64(c)
	case json.Number:
		parsed, err := c.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(c, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
