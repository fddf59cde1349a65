package bundle

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func sampleBundle() *Bundle {
	return &Bundle{
		Trace:     "0b6f1f1e-2f52-4d43-9a53-d3c4f7f1c0de",
		CreatedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Plan: []any{
			map[string]any{"task": "echo", "args": map[string]any{"msg": "hi"}},
		},
		PlanFingerprint:   "plan-fp",
		PolicyPath:        "policy.yaml",
		PolicyFingerprint: "policy-fp",
		Plugins:           []string{"legacy"},
		AuditFile:         "audit_0b6f1f1e.jsonl",
		AuditHead:         "abc123",
	}
}

func generateKey(t *testing.T) (ssh.Signer, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer, path
}

func TestWriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bundles")
	b := sampleBundle()

	path, err := Write(dir, b)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bundle_"+b.Trace+".json"), path)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, b.Trace, got.Trace)
	assert.Equal(t, b.PolicyFingerprint, got.PolicyFingerprint)
	assert.Equal(t, b.AuditHead, got.AuditHead)
	assert.True(t, b.CreatedAt.Equal(got.CreatedAt))

	want, err := Digest(b)
	require.NoError(t, err)
	have, err := Digest(got)
	require.NoError(t, err)
	assert.Equal(t, want, have, "digest survives a write/read cycle")
}

func TestWriteRequiresTrace(t *testing.T) {
	_, err := Write(t.TempDir(), &Bundle{})
	assert.Error(t, err)
}

func TestDigestChangesWithContent(t *testing.T) {
	a, err := Digest(sampleBundle())
	require.NoError(t, err)

	changed := sampleBundle()
	changed.PolicyFingerprint = "other"
	b, err := Digest(changed)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestSignAndVerify(t *testing.T) {
	signer, keyPath := generateKey(t)
	b := sampleBundle()

	require.NoError(t, Sign(b, keyPath))
	require.NotNil(t, b.Signature)
	assert.Equal(t, SignatureTypeSSH, b.Signature.Type)
	assert.Equal(t, ssh.FingerprintSHA256(signer.PublicKey()), b.Signature.PublicKeyFingerprint)

	assert.NoError(t, Verify(b, nil))
	assert.NoError(t, Verify(b, []string{b.Signature.PublicKeyFingerprint}))
	assert.NoError(t, Verify(b, []string{b.Signature.PublicKey + " ci@example"}))

	path, err := Write(t.TempDir(), b)
	require.NoError(t, err)
	reloaded, err := Read(path)
	require.NoError(t, err)
	assert.NoError(t, Verify(reloaded, nil), "signature survives a write/read cycle")
}

func TestVerifyRejects(t *testing.T) {
	signer, _ := generateKey(t)
	other, _ := generateKey(t)

	t.Run("unsigned", func(t *testing.T) {
		err := Verify(sampleBundle(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not signed")
	})

	t.Run("tampered", func(t *testing.T) {
		b := sampleBundle()
		require.NoError(t, SignWith(b, signer))
		b.AuditHead = "forged"
		assert.Error(t, Verify(b, nil))
	})

	t.Run("untrusted key", func(t *testing.T) {
		b := sampleBundle()
		require.NoError(t, SignWith(b, signer))
		err := Verify(b, []string{ssh.FingerprintSHA256(other.PublicKey())})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not trusted")
	})

	t.Run("swapped public key", func(t *testing.T) {
		b := sampleBundle()
		require.NoError(t, SignWith(b, signer))
		b.Signature.PublicKey = strings.TrimSpace(string(ssh.MarshalAuthorizedKey(other.PublicKey())))
		assert.Error(t, Verify(b, nil))
	})
}

func TestFileFingerprint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0600))

	a, err := FileFingerprint(path)
	require.NoError(t, err)
	assert.Equal(t, hashBytes([]byte("binary")), a)

	_, err = FileFingerprint(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	fp, err := BinaryFingerprint()
	require.NoError(t, err)
	assert.Len(t, fp, 64)
}
