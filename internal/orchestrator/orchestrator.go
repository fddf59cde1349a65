// Package orchestrator drives a plan through the policy gate, the tool
// registry and the evidence verifier, recording every decision in the audit
// log.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/toolgate/internal/audit"
	gateerrors "github.com/felixgeelhaar/toolgate/internal/errors"
	"github.com/felixgeelhaar/toolgate/internal/log"
	"github.com/felixgeelhaar/toolgate/internal/plan"
	"github.com/felixgeelhaar/toolgate/internal/policy"
	"github.com/felixgeelhaar/toolgate/internal/telemetry"
	"github.com/felixgeelhaar/toolgate/internal/tool"
	"github.com/felixgeelhaar/toolgate/internal/verify"
)

// Config wires the collaborators of one run. Gate, Verifier, Registry and
// Audit are required and must not be shared with other runs.
type Config struct {
	Gate     *policy.Gate
	Verifier *verify.Verifier
	Registry *tool.Registry
	Audit    *audit.Logger

	// Meta is merged into the run.start event.
	Meta map[string]any

	// Clock defaults to time.Now.
	Clock func() time.Time

	Logger *log.Logger

	// Telemetry defaults to a recorder that drops everything.
	Telemetry *telemetry.Recorder
}

// Orchestrator executes one plan. The audit log is closed when Run or DryRun
// returns, so an orchestrator serves a single run.
type Orchestrator struct {
	gate     *policy.Gate
	verifier *verify.Verifier
	registry *tool.Registry
	audit    *audit.Logger
	meta     map[string]any
	now      func() time.Time
	logger   *log.Logger
	tel      *telemetry.Recorder

	auditErr error
}

// New validates cfg and returns an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Gate == nil:
		return nil, fmt.Errorf("orchestrator: policy gate is required")
	case cfg.Verifier == nil:
		return nil, fmt.Errorf("orchestrator: verifier is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("orchestrator: tool registry is required")
	case cfg.Audit == nil:
		return nil, fmt.Errorf("orchestrator: audit log is required")
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.DefaultLogger()
	}
	tel := cfg.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}

	return &Orchestrator{
		gate:     cfg.Gate,
		verifier: cfg.Verifier,
		registry: cfg.Registry,
		audit:    cfg.Audit,
		meta:     cfg.Meta,
		now:      now,
		logger:   logger.WithTrace(cfg.Audit.TraceID()),
		tel:      tel,
	}, nil
}

// Run executes steps in order until the plan or the step ceiling is
// exhausted, or the time budget expires. Step failures of every kind are
// recorded and skipped. The returned error is non-nil only when the audit log
// could not be written, in which case no further steps were admitted.
func (o *Orchestrator) Run(ctx context.Context, steps []any) (Result, error) {
	defer o.audit.Close()

	res := Result{TraceID: o.audit.TraceID(), AuditPath: o.audit.Path()}
	start := o.now()

	ctx, span := o.tel.StartRun(ctx, res.TraceID, len(steps))
	defer func() { o.tel.EndRun(ctx, span, string(res.Status), res.Done, res.Halted) }()

	details := make(map[string]any, len(o.meta)+1)
	for k, v := range o.meta {
		details[k] = v
	}
	details["n"] = len(steps)
	o.record(EventRunStart, details)
	o.logger.Info("run started", "steps", len(steps))

	limit := len(steps)
	if ceiling := o.gate.MaxSteps(); ceiling < limit {
		limit = ceiling
	}

	for i := 0; i < limit; i++ {
		if o.auditErr != nil {
			res.Halted = "audit write failed"
			break
		}
		if elapsed := o.now().Sub(start); elapsed > o.gate.MaxDuration() {
			o.record(EventFailClosed, map[string]any{"reason": "time budget"})
			o.logger.Warn("time budget exceeded", "elapsed", elapsed, "budget", o.gate.MaxDuration(), "next_step", i)
			res.Halted = "time budget"
			break
		}
		if err := ctx.Err(); err != nil {
			o.record(EventFailClosed, map[string]any{"reason": "canceled"})
			o.logger.Warn("run canceled", "next_step", i)
			res.Halted = "canceled"
			break
		}

		stepCtx, stepSpan := o.tel.StartStep(ctx, i)
		began := time.Now()
		sr := o.step(stepCtx, i, steps[i])
		o.tel.EndStep(stepCtx, stepSpan, sr.Task, sr.knownTask(), string(sr.Outcome), sr.Reasons, time.Since(began))

		res.Steps = append(res.Steps, sr)
		if sr.Outcome == OutcomeSucceeded {
			res.Done++
		}
	}

	res.Status = StatusNOOP
	if res.Done > 0 {
		res.Status = StatusOK
	}
	o.record(EventRunEnd, map[string]any{"done": res.Done, "status": string(res.Status)})
	o.logger.Info("run finished", "done", res.Done, "status", res.Status)

	return res, o.auditErr
}

// step drives one plan entry to its outcome.
func (o *Orchestrator) step(ctx context.Context, i int, raw any) StepResult {
	st, err := plan.Normalize(raw)
	if err != nil {
		o.record(EventInvalidStep, map[string]any{"i": i, "err": errMessage(err)})
		return StepResult{Index: i, Outcome: OutcomeMalformed, Reasons: []string{errMessage(err)}}
	}

	task := st.Task
	logger := o.logger.WithStep(i, task)
	o.record(EventStepStart, map[string]any{"i": i, "task": task, "args": jsonString(st.Args)})

	if !o.gate.Allowed(task) {
		o.record(EventBlocked, map[string]any{"task": task})
		logger.Debug("step blocked by allowlist")
		return StepResult{Index: i, Task: task, Outcome: OutcomeBlocked}
	}
	if !o.gate.EnforceBudget(task) {
		o.record(EventFailClosed, map[string]any{"reason": "budget exceeded", "task": task})
		logger.Debug("step budget exhausted")
		return StepResult{Index: i, Task: task, Outcome: OutcomeBudgetExhausted}
	}

	handler, ok := o.registry.Lookup(task)
	if !ok {
		o.record(EventUnknown, map[string]any{"task": task})
		logger.Debug("no handler registered")
		return StepResult{Index: i, Task: task, Outcome: OutcomeUnknownTool}
	}

	if o.auditErr != nil {
		return StepResult{Index: i, Task: task, Outcome: OutcomeHandlerFault, Reasons: []string{"audit write failed"}}
	}

	out, kind, err := invoke(ctx, handler, st.Args)
	if err != nil {
		o.record(EventError, map[string]any{"task": task, "kind": kind, "err": err.Error()})
		logger.WithError(err).Warn("handler fault", "kind", kind)
		return StepResult{Index: i, Task: task, Outcome: OutcomeHandlerFault, Reasons: []string{kind}}
	}

	out = o.verifier.Check(st, out)
	if !out.OK {
		reasons := out.Reasons
		if reasons == nil {
			reasons = []string{}
		}
		o.record(EventAbstain, map[string]any{"task": task, "reasons": reasons})
		logger.Debug("output rejected", "reasons", reasons)
		return StepResult{Index: i, Task: task, Outcome: OutcomeRejected, Reasons: reasons}
	}

	o.record(EventSuccess, map[string]any{
		"task":     task,
		"result":   jsonString(out.Result),
		"evidence": out.Evidence.Map(),
	})
	o.record(EventStepEnd, map[string]any{"i": i})
	logger.Debug("step succeeded")
	return StepResult{Index: i, Task: task, Outcome: OutcomeSucceeded}
}

// DryRun validates steps against the policy without invoking any tool and
// finalizes the audit log with a NOOP run.end.
func (o *Orchestrator) DryRun(steps []any) (Result, error) {
	defer o.audit.Close()

	res := Result{Status: StatusNOOP, TraceID: o.audit.TraceID(), AuditPath: o.audit.Path()}

	invalid, blocked := 0, 0
	for i, raw := range steps {
		sr := StepResult{Index: i}
		st, err := plan.Normalize(raw)
		switch {
		case err != nil:
			invalid++
			sr.Outcome = OutcomeMalformed
			sr.Reasons = []string{errMessage(err)}
		case !o.gate.Allowed(st.Task):
			blocked++
			sr.Task = st.Task
			sr.Outcome = OutcomeBlocked
		default:
			continue
		}
		res.Steps = append(res.Steps, sr)
	}

	o.record(EventDryRun, map[string]any{
		"plan_len":         len(steps),
		"policy_allowlist": o.gate.Allowlist(),
		"invalid_steps":    invalid,
		"blocked_steps":    blocked,
	})
	o.record(EventRunEnd, map[string]any{"done": 0, "status": string(StatusNOOP)})
	o.logger.Info("dry run finished", "steps", len(steps), "invalid", invalid, "blocked", blocked)

	return res, o.auditErr
}

// record appends an audit event, keeping the first write failure.
func (o *Orchestrator) record(eventType string, details map[string]any) {
	if o.auditErr != nil {
		return
	}
	if err := o.audit.Log(eventType, details); err != nil {
		o.auditErr = err
		o.logger.WithError(err).Error("audit write failed", "event", eventType)
	}
}

// invoke calls h, converting a panic into a handler fault.
func invoke(ctx context.Context, h tool.Handler, args map[string]any) (out tool.Output, kind string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = tool.Output{}
			kind = "panic"
			err = fmt.Errorf("%v", r)
		}
	}()

	out, err = h.Invoke(ctx, args)
	if err != nil {
		return tool.Output{}, errorKind(err), err
	}
	return out, "", nil
}

func errorKind(err error) string {
	var gateErr *gateerrors.GateError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &gateErr):
		return string(gateErr.Code)
	default:
		return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	}
}

func errMessage(err error) string {
	var gateErr *gateerrors.GateError
	if errors.As(err, &gateErr) {
		return gateErr.Message
	}
	return err.Error()
}

// jsonString renders v as canonical JSON for audit details; the audit log
// truncates it.
func jsonString(v any) string {
	data, err := audit.Canonicalize(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
