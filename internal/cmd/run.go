package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/toolgate/internal/adapter"
	"github.com/felixgeelhaar/toolgate/internal/audit"
	"github.com/felixgeelhaar/toolgate/internal/bundle"
	"github.com/felixgeelhaar/toolgate/internal/config"
	"github.com/felixgeelhaar/toolgate/internal/log"
	"github.com/felixgeelhaar/toolgate/internal/orchestrator"
	"github.com/felixgeelhaar/toolgate/internal/plan"
	"github.com/felixgeelhaar/toolgate/internal/policy"
	"github.com/felixgeelhaar/toolgate/internal/telemetry"
	"github.com/felixgeelhaar/toolgate/internal/tool"
	"github.com/felixgeelhaar/toolgate/internal/verify"
	"github.com/felixgeelhaar/toolgate/internal/version"
)

type runOptions struct {
	planPath    string
	policyPath  string
	pluginsPath string
	auditPath   string
	bundle      bool
	dryRun      bool
}

// runOutput is printed to stdout after every run.
type runOutput struct {
	orchestrator.Result
	BundleFile string `json:"bundle_file,omitempty"`
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a plan under a policy",
		Long: `Execute a plan of tool calls under a fail-closed policy.

Without --plan or --policy a built-in demo plan and policy are used. Plugins
from --plugins are registered next to the built-in echo and summarize tools.
The run result is printed as JSON; every decision is recorded in
audit_<trace>.jsonl.

Examples:
  toolgate run --plan plan.json --policy policy.yaml
  toolgate run --plan plan.yaml --plugins plugins.yaml --hmac "$AUDIT_KEY" --bundle
  toolgate run --plan plan.json --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd.Context(), root.cfg, root.logger, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.planPath, "plan", "", "plan file (JSON or YAML list of {task, args})")
	f.StringVar(&opts.policyPath, "policy", "", "policy file (YAML or JSON)")
	f.StringVar(&opts.pluginsPath, "plugins", "", "plugin manifest (YAML or JSON)")
	f.StringVar(&opts.auditPath, "audit", "", "audit file path (default <audit-dir>/audit_<trace>.jsonl)")
	f.String("audit-dir", ".", "directory for audit files")
	f.String("hmac", "", "hex key switching the audit chain to HMAC-SHA256")
	f.Float64("min-coverage", 0.75, "minimum evidence coverage")
	f.Int("min-sources", 2, "minimum number of evidence sources")
	f.BoolVar(&opts.bundle, "bundle", false, "write bundle_<trace>.json with plan, policy and audit fingerprints")
	f.String("bundle-dir", ".", "directory for run bundles")
	f.String("sign-key", "", "SSH private key used to sign the bundle")
	f.BoolVar(&opts.dryRun, "dry-run", false, "validate plan and policy without executing tools")
	f.String("otlp-endpoint", "", "OTLP/HTTP collector for run traces and metrics (host:port)")

	return cmd
}

func (o *runOptions) run(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) error {
	pol, meta, err := o.loadPolicy()
	if err != nil {
		return err
	}
	steps, err := o.loadPlan()
	if err != nil {
		return err
	}

	registry := tool.NewRegistry()
	if err := tool.RegisterBuiltins(registry); err != nil {
		return err
	}
	var plugins []string
	if o.pluginsPath != "" {
		descs, err := adapter.LoadManifest(o.pluginsPath)
		if err != nil {
			return err
		}
		if plugins, err = adapter.RegisterAll(registry, descs, logger); err != nil {
			return err
		}
	}

	key, err := audit.ParseKey(cfg.Audit.HMACKey)
	if err != nil {
		return err
	}
	auditLog, err := audit.New(audit.Config{Path: o.auditPath, Dir: cfg.Audit.Dir, Key: key})
	if err != nil {
		return err
	}
	defer auditLog.Close()

	verifier := verify.New(
		verify.WithRequireEvidence(cfg.Verify.RequireEvidence),
		verify.WithMinCoverage(cfg.Verify.MinCoverage),
		verify.WithMinSources(cfg.Verify.MinSources),
	)

	recorder, shutdown, err := startTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdown(logger)

	orch, err := orchestrator.New(orchestrator.Config{
		Gate:     policy.NewGate(pol),
		Verifier: verifier,
		Registry: registry,
		Audit:    auditLog,
		Meta: map[string]any{
			"policy_path":        meta.Path,
			"policy_fingerprint": meta.Fingerprint,
			"plugins":            plugins,
			"min_cov":            cfg.Verify.MinCoverage,
			"min_src":            cfg.Verify.MinSources,
		},
		Logger:    logger,
		Telemetry: recorder,
	})
	if err != nil {
		return err
	}

	if o.dryRun {
		res, err := orch.DryRun(steps)
		if err != nil {
			return err
		}
		return writeJSON(out, runOutput{Result: res})
	}

	res, runErr := orch.Run(ctx, steps)
	output := runOutput{Result: res}
	if o.bundle && runErr == nil {
		path, err := writeRunBundle(cfg.Bundle, steps, meta, plugins, auditLog)
		if err != nil {
			// The run result stands without its bundle.
			logger.WithError(err).Warn("failed to write run bundle", "trace", res.TraceID)
		} else {
			output.BundleFile = path
		}
	}

	if err := writeJSON(out, output); err != nil {
		return err
	}
	return runErr
}

func (o *runOptions) loadPolicy() (policy.Config, policy.Meta, error) {
	if o.policyPath == "" {
		cfg, meta := policy.Default()
		return cfg, meta, nil
	}
	return policy.Load(o.policyPath)
}

func (o *runOptions) loadPlan() ([]any, error) {
	if o.planPath == "" {
		return plan.Default(), nil
	}
	return plan.Load(o.planPath)
}

func writeRunBundle(cfg config.BundleConfig, steps []any, meta policy.Meta, plugins []string, auditLog *audit.Logger) (string, error) {
	planFP, err := plan.Fingerprint(steps)
	if err != nil {
		return "", err
	}
	// An unreadable executable only loses the binary fingerprint.
	binFP, _ := bundle.BinaryFingerprint()

	b := &bundle.Bundle{
		Trace:             auditLog.TraceID(),
		CreatedAt:         time.Now().UTC(),
		Plan:              steps,
		PlanFingerprint:   planFP,
		PolicyPath:        meta.Path,
		PolicyFingerprint: meta.Fingerprint,
		BinaryFingerprint: binFP,
		Plugins:           plugins,
		AuditFile:         auditLog.Path(),
		AuditHead:         auditLog.Head(),
	}
	if cfg.SignKey != "" {
		if err := bundle.Sign(b, cfg.SignKey); err != nil {
			return "", err
		}
	}
	return bundle.Write(cfg.Dir, b)
}

// startTelemetry builds the exporters for one run. The returned shutdown
// flushes them with a bounded wait and only logs failures.
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig) (*telemetry.Recorder, func(*log.Logger), error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version.GetInfo().Version
	tcfg.Enabled = cfg.Enabled
	tcfg.Endpoint = cfg.Endpoint
	tcfg.Insecure = cfg.Insecure
	tcfg.SampleRate = cfg.SampleRate
	if cfg.Environment != "" {
		tcfg.Environment = cfg.Environment
	}

	provider, err := telemetry.NewProvider(ctx, tcfg)
	if err != nil {
		return nil, nil, err
	}
	recorder, err := provider.Recorder()
	if err != nil {
		return nil, nil, err
	}
	shutdown := func(logger *log.Logger) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			logger.WithError(err).Warn("failed to flush telemetry")
		}
	}
	return recorder, shutdown, nil
}

func writeJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
