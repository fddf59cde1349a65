package orchestrator

// Status is the terminal state of a run.
type Status string

const (
	// StatusOK means at least one step succeeded.
	StatusOK Status = "OK"
	// StatusNOOP means no step succeeded.
	StatusNOOP Status = "NOOP"
)

// Outcome classifies what happened to one plan entry.
type Outcome string

const (
	OutcomeMalformed       Outcome = "malformed"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	OutcomeUnknownTool     Outcome = "unknown_tool"
	OutcomeHandlerFault    Outcome = "handler_fault"
	OutcomeRejected        Outcome = "verifier_rejected"
	OutcomeSucceeded       Outcome = "succeeded"
)

// Audit event types.
const (
	EventRunStart    = "run.start"
	EventRunEnd      = "run.end"
	EventFailClosed  = "fail_closed"
	EventInvalidStep = "invalid.step"
	EventStepStart   = "step.start"
	EventStepEnd     = "step.end"
	EventBlocked     = "blocked"
	EventUnknown     = "unknown"
	EventError       = "error"
	EventAbstain     = "abstain"
	EventSuccess     = "success"
	EventDryRun      = "dry_run.validate"
)

// StepResult records the outcome of one considered plan entry.
type StepResult struct {
	Index   int      `json:"i"`
	Task    string   `json:"task,omitempty"`
	Outcome Outcome  `json:"outcome"`
	Reasons []string `json:"reasons,omitempty"`
}

// knownTask reports whether the step reached a registered, allowed tool.
func (s StepResult) knownTask() bool {
	switch s.Outcome {
	case OutcomeMalformed, OutcomeBlocked, OutcomeUnknownTool:
		return false
	}
	return true
}

// Result summarizes a run. It is returned for every run, including empty and
// fully rejected ones.
type Result struct {
	Done      int          `json:"done"`
	Status    Status       `json:"status"`
	TraceID   string       `json:"trace"`
	AuditPath string       `json:"audit_file"`
	Steps     []StepResult `json:"steps,omitempty"`

	// Halted is set when step admission stopped early: "time budget",
	// "canceled" or "audit write failed".
	Halted string `json:"halted,omitempty"`
}
