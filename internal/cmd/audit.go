package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/toolgate/internal/audit"
	"github.com/felixgeelhaar/toolgate/internal/config"
	gateerrors "github.com/felixgeelhaar/toolgate/internal/errors"
)

func newAuditCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify and maintain audit logs",
		Long: `Verify and maintain hash-chained audit logs.

Subcommands:
  verify   Validate audit chains and report the first divergent record
  salvage  Move broken audit files aside and keep their verified prefix
  keys     List the HMAC key ids used by audit files

HMAC keys are resolved by key id from --hmac, --keys-json (a {"<key_id>": "<hex>"}
map, also read from KEYS_JSON) and <key_id>.key files in --keys-dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := cmd.PersistentFlags()
	pf.String("audit-dir", ".", "directory scanned for audit_*.jsonl when no files are given")
	pf.String("hmac", "", "hex HMAC key")
	pf.String("keys-json", "", `JSON map of key id to hex key`)
	pf.String("keys-dir", "keys", "directory holding <key_id>.key files")

	cmd.AddCommand(newAuditVerifyCmd(root), newAuditSalvageCmd(root), newAuditKeysCmd(root))
	return cmd
}

func newAuditVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [files...]",
		Short: "Validate audit chains",
		Long: `Validate the hash chain of each audit file, oldest first.

Files chained with an HMAC key that cannot be resolved are reported as
skipped, not failed. The command fails when any file is broken.

Examples:
  toolgate audit verify
  toolgate audit verify audit_3f2a.jsonl --hmac "$AUDIT_KEY"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := loadKeyring(root.cfg.Audit)
			if err != nil {
				return err
			}
			results, err := scan(root.cfg.Audit.Dir, args, keys)
			if err != nil {
				return err
			}
			return reportScan(cmd.OutOrStdout(), results)
		},
	}
}

func newAuditSalvageCmd(root *rootOptions) *cobra.Command {
	var corruptedDir string

	cmd := &cobra.Command{
		Use:   "salvage [files...]",
		Short: "Keep the verified prefix of broken audit files",
		Long: `Salvage broken audit files.

Each broken file is moved to the corrupted directory (default audit_corrupted
beside the file) and replaced by <name>_salvaged.jsonl holding only the records
before the first divergence. Intact files and files whose key is unknown are
left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := loadKeyring(root.cfg.Audit)
			if err != nil {
				return err
			}
			results, err := scan(root.cfg.Audit.Dir, args, keys)
			if err != nil {
				return err
			}
			return salvageAll(cmd.OutOrStdout(), results, keys, corruptedDir)
		},
	}

	cmd.Flags().StringVar(&corruptedDir, "corrupted-dir", "", "destination for broken originals")
	return cmd
}

func newAuditKeysCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List key ids found in audit files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := audit.CollectKeyUsage(root.cfg.Audit.Dir)
			if err != nil {
				return err
			}
			printKeyUsage(cmd.OutOrStdout(), usage)
			return nil
		},
	}
}

// loadKeyring collects HMAC keys from every configured source.
func loadKeyring(cfg config.AuditConfig) (*audit.Keyring, error) {
	keys := audit.NewKeyring()
	if cfg.HMACKey != "" {
		if _, err := keys.Add(cfg.HMACKey); err != nil {
			return nil, err
		}
	}
	if cfg.KeysJSON != "" {
		keys.LoadJSON([]byte(cfg.KeysJSON))
	}
	if cfg.KeysDir != "" {
		if err := keys.LoadDir(cfg.KeysDir); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// scan checks the named files, or every audit file in dir when none are named.
func scan(dir string, paths []string, keys *audit.Keyring) ([]audit.ScanResult, error) {
	if len(paths) == 0 {
		return audit.ScanDir(dir, keys)
	}
	results := make([]audit.ScanResult, 0, len(paths))
	for _, p := range paths {
		lines, err := audit.ReadLines(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, gateerrors.NewFileNotFoundError(p)
		}
		if err != nil {
			return nil, gateerrors.Wrap(gateerrors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", p), err)
		}
		results = append(results, audit.Check(p, lines, keys))
	}
	return results, nil
}

func reportScan(out io.Writer, results []audit.ScanResult) error {
	if len(results) == 0 {
		fmt.Fprintln(out, labelStyle.Render("No audit_*.jsonl files found."))
		return nil
	}

	var firstBroken *audit.ScanResult
	broken := 0
	for i, r := range results {
		name := filepath.Base(r.Path)
		switch r.Status {
		case audit.ScanOK:
			fmt.Fprintf(out, "%s %s %s\n", statusLabel("OK"), name, labelStyle.Render(fmt.Sprintf("(%d records)", r.Records)))
		case audit.ScanBroken:
			broken++
			if firstBroken == nil {
				firstBroken = &results[i]
			}
			fmt.Fprintf(out, "%s %s %s\n", statusLabel("BROKEN"), name, labelStyle.Render(fmt.Sprintf("(first bad record %d)", r.Divergence)))
		case audit.ScanEmpty:
			fmt.Fprintf(out, "%s %s\n", statusLabel("EMPTY"), name)
		case audit.ScanSkipped:
			fmt.Fprintf(out, "%s %s %s\n", statusLabel("SKIPPED"), name, labelStyle.Render("(unknown key_id "+r.KeyID+")"))
		}
	}

	switch broken {
	case 0:
		return nil
	case 1:
		return gateerrors.NewAuditChainBrokenError(firstBroken.Path, firstBroken.Divergence)
	default:
		return gateerrors.New(gateerrors.ErrCodeAuditChainBroken, fmt.Sprintf("%d of %d audit files have broken chains", broken, len(results))).
			WithSuggestion("Run 'toolgate audit salvage' to keep the verified prefixes")
	}
}

func salvageAll(out io.Writer, results []audit.ScanResult, keys *audit.Keyring, corruptedDir string) error {
	if len(results) == 0 {
		fmt.Fprintln(out, labelStyle.Render("No audit_*.jsonl files found."))
		return nil
	}
	for _, r := range results {
		name := filepath.Base(r.Path)
		switch r.Status {
		case audit.ScanOK:
			fmt.Fprintf(out, "%s %s\n", statusLabel("OK"), name)
			continue
		case audit.ScanEmpty:
			fmt.Fprintf(out, "%s %s %s\n", statusLabel("EMPTY"), name, labelStyle.Render("(skipped)"))
			continue
		case audit.ScanSkipped:
			fmt.Fprintf(out, "%s %s %s\n", statusLabel("SKIPPED"), name, labelStyle.Render("(unknown key_id "+r.KeyID+")"))
			continue
		}

		var key []byte
		if r.KeyID != "" {
			key, _ = keys.Lookup(r.KeyID)
		}
		report, err := audit.Salvage(r.Path, corruptedDir, key)
		if err != nil {
			return err
		}
		if report.Valid {
			continue
		}
		fmt.Fprintf(out, "%s %s at line %d\n", statusLabel("BROKEN"), name, report.BrokenLine)
		fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("offending line:"), audit.Truncate(report.BadLine, 120))
		fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("moved to:"), report.CorruptedPath)
		fmt.Fprintf(out, "  %s %s (%d records)\n", labelStyle.Render("salvaged:"), report.SalvagedPath, report.Kept)
	}
	return nil
}

func printKeyUsage(out io.Writer, usage *audit.KeyUsage) {
	fmt.Fprintln(out, headerStyle.Render("Key IDs in audits"))
	ids := make([]string, 0, len(usage.ByKeyID))
	for id := range usage.ByKeyID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(out, "  %12s  (%d files)\n", id, usage.ByKeyID[id])
	}
	fmt.Fprintf(out, "\nPlain SHA-256 audits: %d\n", usage.Plain)
}
