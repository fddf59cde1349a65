// Package bundle writes the provenance record of a run: the plan that was
// executed, the policy that gated it, the binary that enforced it and the
// audit chain head it produced.
package bundle

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Bundle is the provenance record of one run.
type Bundle struct {
	Trace             string    `json:"trace"`
	CreatedAt         time.Time `json:"created_at"`
	Plan              []any     `json:"plan"`
	PlanFingerprint   string    `json:"plan_fingerprint"`
	PolicyPath        string    `json:"policy_path,omitempty"`
	PolicyFingerprint string    `json:"policy_fingerprint"`
	BinaryFingerprint string    `json:"binary_fingerprint,omitempty"`
	Plugins           []string  `json:"plugins,omitempty"`

	// AuditFile and AuditHead tie the bundle to the audit chain: AuditHead is
	// the chain value of the file's last record.
	AuditFile string `json:"audit_file"`
	AuditHead string `json:"audit_head"`

	Signature *Signature `json:"signature,omitempty"`
}

// FileName is the name Write uses for a trace.
func FileName(trace string) string {
	return fmt.Sprintf("bundle_%s.json", trace)
}

// Write stores b as indented JSON in dir and returns the file path.
func Write(dir string, b *Bundle) (string, error) {
	if b.Trace == "" {
		return "", fmt.Errorf("bundle trace is required")
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", errors.Wrap(errors.ErrCodeDirectoryFailed, "failed to create bundle directory", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFileMarshal, "failed to encode bundle", err)
	}

	path := filepath.Join(dir, FileName(b.Trace))
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return "", errors.Wrap(errors.ErrCodeFileWriteFailed, fmt.Sprintf("failed to write bundle %s", path), err)
	}
	return path, nil
}

// Read loads a bundle written by Write.
func Read(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read bundle %s", path), err)
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.NewFileUnmarshalError(path, "JSON", err)
	}
	return &b, nil
}

// Digest is the blake3 hash of b's JSON encoding without its signature.
func Digest(b *Bundle) (string, error) {
	unsigned := *b
	unsigned.Signature = nil

	data, err := json.Marshal(unsigned)
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}
	return hashBytes(data), nil
}

// BinaryFingerprint hashes the running executable.
func BinaryFingerprint() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return FileFingerprint(exe)
}

// FileFingerprint returns the blake3 hash of the file at path.
func FileFingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

func hashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("%x", sum[:])
}
