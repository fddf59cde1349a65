package exitcode

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution. A run that ends NOOP still
	// exits with Success; the decision lives in the result and audit log.
	Success = 0

	// GeneralError indicates a general error condition
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// PolicyError indicates a policy file that could not be loaded or validated
	PolicyError = 3

	// ChainBroken indicates an audit chain or bundle that failed verification
	ChainBroken = 4

	// KeyError indicates an invalid HMAC key or untrusted signing key
	KeyError = 5

	// InputError indicates an unreadable or malformed plan, manifest or config
	InputError = 6

	// Interrupted indicates the run was stopped by SIGINT or SIGTERM
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	if err == nil {
		Exit(Success)
		return
	}

	Exit(DetermineExitCode(err))
}

// DetermineExitCode maps an error to an exit code. Coded errors are mapped by
// category; anything else falls back to matching the message.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	var gateErr *errors.GateError
	if stderrors.As(err, &gateErr) {
		if code, ok := fromCode(gateErr.Code); ok {
			return code
		}
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "signature") || strings.Contains(errMsg, "not trusted") {
		return KeyError
	}
	if strings.Contains(errMsg, "chain broken") || strings.Contains(errMsg, "head mismatch") {
		return ChainBroken
	}

	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

func fromCode(code errors.ErrorCode) (int, bool) {
	switch code {
	case errors.ErrCodeAuditChainBroken:
		return ChainBroken, true
	case errors.ErrCodeAuditKeyInvalid:
		return KeyError, true
	}

	category, _, _ := strings.Cut(string(code), "-")
	switch category {
	case "POLICY":
		return PolicyError, true
	case "PLAN", "PLUGIN", "CONFIG", "IO":
		return InputError, true
	}
	return 0, false
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case PolicyError:
		return "Policy could not be loaded"
	case ChainBroken:
		return "Audit chain or bundle verification failed"
	case KeyError:
		return "Invalid or untrusted key"
	case InputError:
		return "Invalid plan, manifest or configuration"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
