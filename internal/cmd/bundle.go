package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/toolgate/internal/audit"
	"github.com/felixgeelhaar/toolgate/internal/bundle"
	"github.com/felixgeelhaar/toolgate/internal/config"
	gateerrors "github.com/felixgeelhaar/toolgate/internal/errors"
	"github.com/felixgeelhaar/toolgate/internal/plan"
)

func newBundleCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Inspect run bundles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newBundleVerifyCmd(root))
	return cmd
}

func newBundleVerifyCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <bundle.json>",
		Short: "Verify a run bundle against its audit log",
		Long: `Verify a run bundle.

Checks that the plan fingerprint matches the embedded plan, that the referenced
audit file has an intact chain ending at the recorded audit head, and, when the
bundle is signed, that the SSH signature is valid. With --trusted-key the bundle
must be signed by one of the given keys (authorized key line or SHA256
fingerprint).

Examples:
  toolgate bundle verify bundle_3f2a.json
  toolgate bundle verify bundle_3f2a.json --trusted-key SHA256:Yx... --hmac "$AUDIT_KEY"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyBundle(cmd.OutOrStdout(), args[0], root.cfg)
		},
	}

	f := cmd.Flags()
	f.StringSlice("trusted-key", nil, "trusted signing key (repeatable)")
	f.String("hmac", "", "hex HMAC key of the audit chain")
	f.String("keys-json", "", "JSON map of key id to hex key")
	f.String("keys-dir", "keys", "directory holding <key_id>.key files")
	return cmd
}

func verifyBundle(out io.Writer, path string, cfg *config.Config) error {
	b, err := bundle.Read(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Bundle"), b.Trace)

	fp, err := plan.Fingerprint(b.Plan)
	if err != nil {
		return err
	}
	if fp != b.PlanFingerprint {
		fmt.Fprintf(out, "%s plan fingerprint\n", statusLabel("FAILED"))
		return fmt.Errorf("plan fingerprint mismatch for trace %s", b.Trace)
	}
	fmt.Fprintf(out, "%s plan fingerprint\n", statusLabel("OK"))

	if err := verifyBundleAudit(out, path, b, cfg.Audit); err != nil {
		return err
	}

	trusted := cfg.Bundle.TrustedKeys
	switch {
	case b.Signature == nil && len(trusted) > 0:
		fmt.Fprintf(out, "%s signature\n", statusLabel("FAILED"))
		return fmt.Errorf("bundle for trace %s is not signed", b.Trace)
	case b.Signature == nil:
		fmt.Fprintf(out, "%s signature %s\n", statusLabel("UNSIGNED"), labelStyle.Render("(no signature present)"))
	default:
		if err := bundle.Verify(b, trusted); err != nil {
			fmt.Fprintf(out, "%s signature\n", statusLabel("FAILED"))
			return err
		}
		note := "(trusted)"
		if len(trusted) == 0 {
			note = "(key not pinned; pass --trusted-key)"
		}
		fmt.Fprintf(out, "%s signature %s %s\n", statusLabel("SIGNED"), b.Signature.PublicKeyFingerprint, labelStyle.Render(note))
	}
	return nil
}

// verifyBundleAudit checks the audit chain the bundle points to. A relative
// audit path is tried as given and then beside the bundle.
func verifyBundleAudit(out io.Writer, bundlePath string, b *bundle.Bundle, cfg config.AuditConfig) error {
	auditPath := b.AuditFile
	if _, err := os.Stat(auditPath); err != nil && !filepath.IsAbs(auditPath) {
		auditPath = filepath.Join(filepath.Dir(bundlePath), filepath.Base(auditPath))
	}

	lines, err := audit.ReadLines(auditPath)
	if err != nil {
		return gateerrors.NewFileNotFoundError(b.AuditFile)
	}

	keys, err := loadKeyring(cfg)
	if err != nil {
		return err
	}
	res := audit.Check(auditPath, lines, keys)
	switch res.Status {
	case audit.ScanBroken:
		fmt.Fprintf(out, "%s audit chain\n", statusLabel("BROKEN"))
		return gateerrors.NewAuditChainBrokenError(auditPath, res.Divergence)
	case audit.ScanSkipped:
		fmt.Fprintf(out, "%s audit chain %s\n", statusLabel("SKIPPED"), labelStyle.Render("(unknown key_id "+res.KeyID+")"))
	case audit.ScanEmpty:
		fmt.Fprintf(out, "%s audit chain\n", statusLabel("FAILED"))
		return fmt.Errorf("audit file %s is empty", auditPath)
	default:
		fmt.Fprintf(out, "%s audit chain %s\n", statusLabel("OK"), labelStyle.Render(fmt.Sprintf("(%d records)", res.Records)))
	}

	if head := lastChain(lines); head != b.AuditHead {
		fmt.Fprintf(out, "%s audit head\n", statusLabel("FAILED"))
		return fmt.Errorf("audit head mismatch for trace %s", b.Trace)
	}
	fmt.Fprintf(out, "%s audit head\n", statusLabel("OK"))
	return nil
}

func lastChain(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	ev, err := audit.ParseEvent(lines[len(lines)-1])
	if err != nil {
		return ""
	}
	return ev.Chain
}
