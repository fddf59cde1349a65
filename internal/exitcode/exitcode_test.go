package exitcode

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected int
	}{
		{"Success", Success, 0},
		{"GeneralError", GeneralError, 1},
		{"UsageError", UsageError, 2},
		{"PolicyError", PolicyError, 3},
		{"ChainBroken", ChainBroken, 4},
		{"KeyError", KeyError, 5},
		{"InputError", InputError, 6},
		{"Interrupted", Interrupted, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code != tt.expected {
				t.Errorf("Exit code %s = %d, want %d", tt.name, tt.code, tt.expected)
			}
		})
	}
}

func TestDetermineExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error returns success", nil, Success},
		{"invalid policy", errors.NewPolicyInvalidError("budgets.echo is negative"), PolicyError},
		{"policy not found", errors.New(errors.ErrCodePolicyNotFound, "missing"), PolicyError},
		{"wrapped chain break", fmt.Errorf("verify: %w", errors.NewAuditChainBrokenError("audit_x.jsonl", 2)), ChainBroken},
		{"bad hmac key", errors.NewAuditKeyInvalidError(stderrors.New("odd length")), KeyError},
		{"invalid plan", errors.NewPlanInvalidError("plan must be a list"), InputError},
		{"plugin manifest", errors.NewPluginManifestError("missing name"), InputError},
		{"config", errors.New(errors.ErrCodeConfigInvalid, "bad threshold"), InputError},
		{"file not found", errors.NewFileNotFoundError("plan.json"), InputError},
		{"audit write falls through", errors.New(errors.ErrCodeAuditWrite, "disk full"), GeneralError},
		{"untrusted signer", stderrors.New("signing key SHA256:abc is not trusted"), KeyError},
		{"bad signature", stderrors.New("signature verification failed: ssh: signature did not verify"), KeyError},
		{"bundle head mismatch", stderrors.New("audit head mismatch for trace t1"), ChainBroken},
		{"unknown flag", stderrors.New("unknown flag: --nope"), UsageError},
		{"required flag", stderrors.New(`required flag(s) "plan" not set`), UsageError},
		{"positional args", stderrors.New("accepts 1 arg(s), received 2"), UsageError},
		{"generic error", stderrors.New("something went wrong"), GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineExitCode(tt.err); got != tt.expected {
				t.Errorf("DetermineExitCode(%v) = %d, want %d", tt.err, got, tt.expected)
			}
		})
	}
}

func TestGetExitCodeDescription(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{Success, "Success"},
		{GeneralError, "General error"},
		{UsageError, "Usage error (invalid flags or arguments)"},
		{PolicyError, "Policy could not be loaded"},
		{ChainBroken, "Audit chain or bundle verification failed"},
		{KeyError, "Invalid or untrusted key"},
		{InputError, "Invalid plan, manifest or configuration"},
		{Interrupted, "Interrupted"},
		{99, "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := GetExitCodeDescription(tt.code); got != tt.expected {
				t.Errorf("GetExitCodeDescription(%d) = %q, want %q", tt.code, got, tt.expected)
			}
		})
	}
}
