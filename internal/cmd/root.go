package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/toolgate/internal/config"
	"github.com/felixgeelhaar/toolgate/internal/log"
)

// rootOptions carries state resolved once per invocation and shared by every
// subcommand.
type rootOptions struct {
	configFile string

	cfg    *config.Config
	logger *log.Logger
}

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "toolgate",
		Short: "Fail-closed tool orchestration with a tamper-evident audit log",
		Long: `toolgate executes a plan of tool calls under a deny-by-default policy.

Every step is checked against the policy allowlist and per-tool budgets,
dispatched to a built-in tool or a plugin (subprocess or HTTP), and its output
is verified for evidence before it is accepted. Every decision is appended to
a hash-chained JSONL audit log that can be verified and salvaged later.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default is ./toolgate.yaml or $HOME/.toolgate/toolgate.yaml)")
	cmd.PersistentFlags().String("log-level", "info", "diagnostic log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", "text", "diagnostic log format (text, json)")

	cmd.AddCommand(
		newRunCmd(opts),
		newAuditCmd(opts),
		newBundleCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// load resolves settings for the executing command and installs the
// diagnostic logger. Diagnostics go to stderr; stdout carries results.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.LoadWithFlags(o.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	o.cfg = cfg

	o.logger = log.New(log.Config{
		Level:  log.ParseLevel(cfg.Log.Level),
		Format: log.ParseFormat(cfg.Log.Format),
		Output: cmd.ErrOrStderr(),
	})
	log.SetDefaultLogger(o.logger)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, which is canceled on
// interrupt by the caller.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
