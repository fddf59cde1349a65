package bundle

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

// SignatureTypeSSH is the only supported signature type.
const SignatureTypeSSH = "ssh"

// Signature is a detached SSH signature over a bundle digest.
type Signature struct {
	Type                 string    `json:"type"`
	PublicKey            string    `json:"public_key"`
	PublicKeyFingerprint string    `json:"public_key_fingerprint"`
	SignedAt             time.Time `json:"signed_at"`
	Value                string    `json:"value"`
}

// Sign signs b in place with the SSH private key at keyPath.
func Sign(b *Bundle, keyPath string) error {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	return SignWith(b, signer)
}

// SignWith signs b in place with signer.
func SignWith(b *Bundle, signer ssh.Signer) error {
	digest, err := Digest(b)
	if err != nil {
		return err
	}

	pub := signer.PublicKey()
	sig := &Signature{
		Type:                 SignatureTypeSSH,
		PublicKey:            strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub))),
		PublicKeyFingerprint: ssh.FingerprintSHA256(pub),
		SignedAt:             time.Now().UTC().Truncate(time.Second),
	}

	blob, err := signer.Sign(rand.Reader, []byte(signMessage(b.Trace, digest, sig.SignedAt)))
	if err != nil {
		return fmt.Errorf("failed to sign bundle: %w", err)
	}
	sig.Value = base64.StdEncoding.EncodeToString(ssh.Marshal(blob))

	b.Signature = sig
	return nil
}

// Verify checks b's signature. When trusted is non-empty the signing key must
// match one of its entries, given as an authorized key line or a SHA256
// fingerprint.
func Verify(b *Bundle, trusted []string) error {
	sig := b.Signature
	if sig == nil {
		return fmt.Errorf("bundle is not signed")
	}
	if sig.Type != SignatureTypeSSH {
		return fmt.Errorf("unsupported signature type: %s", sig.Type)
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(sig.PublicKey))
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}
	if len(trusted) > 0 && !isTrusted(pub, trusted) {
		return fmt.Errorf("signing key %s is not trusted", ssh.FingerprintSHA256(pub))
	}

	raw, err := base64.StdEncoding.DecodeString(sig.Value)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}
	var blob ssh.Signature
	if err := ssh.Unmarshal(raw, &blob); err != nil {
		return fmt.Errorf("failed to decode signature: %w", err)
	}

	digest, err := Digest(b)
	if err != nil {
		return err
	}
	if err := pub.Verify([]byte(signMessage(b.Trace, digest, sig.SignedAt)), &blob); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

func isTrusted(pub ssh.PublicKey, trusted []string) bool {
	fp := ssh.FingerprintSHA256(pub)
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	for _, entry := range trusted {
		entry = strings.TrimSpace(entry)
		if entry == fp || entry == authorized {
			return true
		}
		if key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(entry)); err == nil && ssh.FingerprintSHA256(key) == fp {
			return true
		}
	}
	return false
}

func signMessage(trace, digest string, signedAt time.Time) string {
	var buf strings.Builder
	buf.WriteString("TOOLGATE RUN BUNDLE\n")
	buf.WriteString(fmt.Sprintf("Trace: %s\n", trace))
	buf.WriteString(fmt.Sprintf("Bundle Digest: %s\n", digest))
	buf.WriteString(fmt.Sprintf("Timestamp: %s\n", signedAt.Format(time.RFC3339)))
	return buf.String()
}
