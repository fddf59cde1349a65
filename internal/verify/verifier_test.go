package verify

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/toolgate/internal/plan"
	"github.com/felixgeelhaar/toolgate/internal/tool"
)

func evidence(coverage any, sources ...string) *tool.Evidence {
	return &tool.Evidence{Coverage: coverage, Sources: sources}
}

func TestCheck(t *testing.T) {
	echo := plan.Step{Task: "echo"}
	summarize := plan.Step{Task: "summarize"}

	tests := []struct {
		name     string
		verifier *Verifier
		step     plan.Step
		out      tool.Output
		wantOK   bool
		reasons  []string
	}{
		{
			name:     "accepts sufficient evidence",
			verifier: New(WithMinCoverage(0.75), WithMinSources(2)),
			step:     echo,
			out:      tool.Succeed("hi", evidence(0.80, "echo", "caller")),
			wantOK:   true,
		},
		{
			name:     "too few sources",
			verifier: New(WithMinCoverage(0.75), WithMinSources(5)),
			step:     echo,
			out:      tool.Succeed("hi", evidence(0.80, "echo", "caller")),
			reasons:  []string{"sources 2 < 5"},
		},
		{
			name:     "missing evidence",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", nil),
			reasons:  []string{"missing evidence"},
		},
		{
			name:     "empty evidence counts as missing",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", &tool.Evidence{}),
			reasons:  []string{"missing evidence"},
		},
		{
			name:     "missing coverage defaults to 0.6",
			verifier: New(WithMinCoverage(0.60)),
			step:     echo,
			out:      tool.Succeed("hi", evidence(nil, "a")),
			wantOK:   true,
		},
		{
			name:     "missing coverage below threshold",
			verifier: New(WithMinCoverage(0.75)),
			step:     echo,
			out:      tool.Succeed("hi", evidence(nil, "a")),
			reasons:  []string{"coverage 0.60 < 0.75"},
		},
		{
			name:     "NaN threshold rejects",
			verifier: New(WithMinCoverage(math.NaN())),
			step:     echo,
			out:      tool.Succeed("hi", evidence(0.0, "a")),
			reasons:  []string{"coverage 0.00 < NaN"},
		},
		{
			name:     "non-numeric coverage",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", evidence("lots", "a")),
			reasons:  []string{"coverage 0.00 < 0.60"},
		},
		{
			name:     "boolean coverage is not numeric",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", evidence(true, "a")),
			reasons:  []string{"coverage 0.00 < 0.60"},
		},
		{
			name:     "NaN coverage",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", evidence(math.NaN(), "a")),
			reasons:  []string{"coverage 0.00 < 0.60"},
		},
		{
			name:     "numeric string coverage",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", evidence("0.9", "a")),
			wantOK:   true,
		},
		{
			name:     "json number coverage",
			verifier: New(),
			step:     echo,
			out:      tool.Succeed("hi", evidence(json.Number("0.7"), "a")),
			wantOK:   true,
		},
		{
			name:     "evidence optional",
			verifier: New(WithRequireEvidence(false), WithMinCoverage(0), WithMinSources(0)),
			step:     echo,
			out:      tool.Succeed("hi", nil),
			wantOK:   true,
		},
		{
			name:     "summary contract satisfied",
			verifier: New(),
			step:     summarize,
			out:      tool.Succeed(map[string]any{"summary": "s"}, evidence(0.85, "legacy", "meta")),
			wantOK:   true,
		},
		{
			name:     "summary contract violated",
			verifier: New(),
			step:     summarize,
			out:      tool.Succeed("just text", evidence(0.85, "legacy", "meta")),
			reasons:  []string{"bad summary shape"},
		},
		{
			name:     "summary without key",
			verifier: New(),
			step:     summarize,
			out:      tool.Succeed(map[string]any{"text": "s"}, evidence(0.85, "legacy")),
			reasons:  []string{"bad summary shape"},
		},
		{
			name:     "contract removed",
			verifier: New(WithContract("summarize", nil)),
			step:     summarize,
			out:      tool.Succeed("just text", evidence(0.85, "legacy")),
			wantOK:   true,
		},
		{
			name: "custom contract",
			verifier: New(WithContract("search", func(result any) string {
				if _, ok := result.([]any); !ok {
					return "bad search shape"
				}
				return ""
			})),
			step:    plan.Step{Task: "search"},
			out:     tool.Succeed("x", evidence(0.9, "a")),
			reasons: []string{"bad search shape"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.verifier.Check(tt.step, tt.out)
			assert.Equal(t, tt.wantOK, got.OK)
			if tt.wantOK {
				assert.Equal(t, tt.out, got)
				return
			}
			assert.Equal(t, tt.reasons, got.Reasons)
			assert.Nil(t, got.Result, "rejections drop the result")
			assert.Nil(t, got.Evidence, "rejections drop the evidence")
		})
	}
}

func TestCheckNeverUpgrades(t *testing.T) {
	v := New(WithRequireEvidence(false), WithMinCoverage(0), WithMinSources(0))

	outputs := []tool.Output{
		tool.Fail("empty msg"),
		{OK: false, Result: "partial", Evidence: evidence(1.0, "a", "b", "c")},
		{OK: false},
	}

	for _, out := range outputs {
		got := v.Check(plan.Step{Task: "echo"}, out)
		assert.False(t, got.OK)
		assert.Equal(t, out, got, "rejected outputs pass through unchanged")
	}
}

func TestDefaults(t *testing.T) {
	v := New()
	assert.Equal(t, DefaultMinCoverage, v.MinCoverage())
	assert.Equal(t, DefaultMinSources, v.MinSources())
}
