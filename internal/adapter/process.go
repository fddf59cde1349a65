package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/felixgeelhaar/toolgate/internal/log"
	"github.com/felixgeelhaar/toolgate/internal/tool"
)

// DefaultTimeout bounds a single adapter call.
const DefaultTimeout = 8 * time.Second

// ProcessConfig configures a Process adapter.
type ProcessConfig struct {
	// Cmd is the program and its arguments.
	Cmd []string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// Env is appended to the parent environment.
	Env []string

	Logger *log.Logger
}

// Process runs a local executable once per call, writing the request to its
// stdin and reading the response from its stdout.
type Process struct {
	name    string
	cmd     []string
	timeout time.Duration
	env     []string
	logger  *log.Logger
}

// NewProcess returns a process adapter registered as name.
func NewProcess(name string, cfg ProcessConfig) *Process {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	return &Process{
		name:    name,
		cmd:     append([]string(nil), cfg.Cmd...),
		timeout: timeout,
		env:     append([]string(nil), cfg.Env...),
		logger:  logger.With("adapter", name, "kind", KindProcess),
	}
}

// Name returns the tool name.
func (p *Process) Name() string { return p.name }

// Run executes the command under its own timeout.
func (p *Process) Run(ctx context.Context, op string, params map[string]any) tool.Output {
	if len(p.cmd) == 0 {
		return tool.Fail("subprocess_error:no_command")
	}

	payload, err := encodeRequest(op, params)
	if err != nil {
		return tool.Fail("subprocess_error:encode", short(err.Error()))
	}

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.cmd[0], p.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = time.Second
	if len(p.env) > 0 {
		cmd.Env = append(os.Environ(), p.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	p.logger.Debug("subprocess finished", "op", op, "duration", time.Since(start))

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		p.logger.Warn("subprocess timed out", "op", op, "timeout", p.timeout)
		return tool.Fail("timeout")
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			reasons := []string{fmt.Sprintf("nonzero_exit:%d", exitErr.ExitCode())}
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				reasons = append(reasons, short(msg))
			}
			return tool.Fail(reasons...)
		}
		p.logger.WithError(err).Warn("subprocess failed to run", "op", op)
		return tool.Fail("subprocess_error:" + startErrorKind(ctx, err))
	}

	resp, kind, err := decodeResponse(stdout.Bytes())
	if err != nil {
		p.logger.WithError(err).Debug("subprocess returned malformed output", "op", op)
		return badJSON(kind, bytes.TrimSpace(stdout.Bytes()))
	}
	return normalize(p.name, resp)
}

func startErrorKind(ctx context.Context, err error) string {
	var execErr *exec.Error
	switch {
	case ctx.Err() != nil:
		return "canceled"
	case errors.As(err, &execErr):
		return "not_found"
	case errors.Is(err, os.ErrPermission):
		return "permission"
	case errors.Is(err, os.ErrNotExist):
		return "not_found"
	default:
		return "start"
	}
}
