package policy

import (
	"math"
	"sort"
	"time"
)

// Gate admits or denies plan steps before they run. A gate holds the
// per-task budget counters of a single run and is not shared between runs.
type Gate struct {
	allow       map[string]struct{}
	maxSteps    int
	maxDuration time.Duration
	budgets     map[string]int
}

// NewGate builds a gate from cfg. Budgets are copied, so cfg is never
// mutated by admissions.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		allow:       make(map[string]struct{}, len(cfg.Allowlist)),
		maxSteps:    cfg.MaxSteps,
		maxDuration: secondsToDuration(cfg.MaxSeconds),
		budgets:     make(map[string]int, len(cfg.Budgets)),
	}
	for _, task := range cfg.Allowlist {
		if task != "" {
			g.allow[task] = struct{}{}
		}
	}
	for task, n := range cfg.Budgets {
		if n < 0 {
			n = 0
		}
		g.budgets[task] = n
	}
	return g
}

// secondsToDuration saturates at the largest Duration instead of wrapping.
// NaN and negative values give a zero budget.
func secondsToDuration(sec float64) time.Duration {
	switch {
	case !(sec > 0):
		return 0
	case sec >= float64(math.MaxInt64)/float64(time.Second):
		return time.Duration(math.MaxInt64)
	default:
		return time.Duration(sec * float64(time.Second))
	}
}

// Allowed reports whether task is an exact member of the allowlist.
func (g *Gate) Allowed(task string) bool {
	_, ok := g.allow[task]
	return ok
}

// EnforceBudget consumes one unit of task's budget. Tasks without a budget
// are unconstrained. It returns false, leaving the counter at zero, once the
// budget is spent.
func (g *Gate) EnforceBudget(task string) bool {
	left, ok := g.budgets[task]
	if !ok {
		return true
	}
	if left <= 0 {
		return false
	}
	g.budgets[task] = left - 1
	return true
}

// Remaining returns the unspent budget for task and whether task has one.
func (g *Gate) Remaining(task string) (int, bool) {
	left, ok := g.budgets[task]
	return left, ok
}

// MaxSteps is the ceiling on plan entries considered in one run.
func (g *Gate) MaxSteps() int { return g.maxSteps }

// MaxDuration is the wall-clock budget for admitting steps.
func (g *Gate) MaxDuration() time.Duration { return g.maxDuration }

// Allowlist returns the allowed tasks in sorted order.
func (g *Gate) Allowlist() []string {
	tasks := make([]string, 0, len(g.allow))
	for task := range g.allow {
		tasks = append(tasks, task)
	}
	sort.Strings(tasks)
	return tasks
}
