package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

const keyIDLen = 12

// KeyID returns the short fingerprint logged with every keyed event.
func KeyID(key []byte) string {
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:])[:keyIDLen]
}

// ParseKey decodes a hex encoded HMAC key. An empty string means no key.
func ParseKey(hexKey string) ([]byte, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.NewAuditKeyInvalidError(err)
	}
	return key, nil
}

// FirstKeyID returns the first key_id found in lines, skipping lines that do
// not parse. It returns "" for unkeyed chains.
func FirstKeyID(lines []string) string {
	for _, line := range lines {
		var rec struct {
			KeyID *string `json:"key_id"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec.KeyID != nil && *rec.KeyID != "" {
			return *rec.KeyID
		}
	}
	return ""
}

// Keyring resolves HMAC keys by key id.
type Keyring struct {
	keys map[string][]byte
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[string][]byte)}
}

// Add registers a hex key and returns its key id.
func (k *Keyring) Add(hexKey string) (string, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return "", err
	}
	if len(key) == 0 {
		return "", errors.NewAuditKeyInvalidError(nil)
	}
	id := KeyID(key)
	k.keys[id] = key
	return id, nil
}

// LoadJSON reads a {"<key_id>": "<hex key>"} map. Entries that do not decode
// or whose fingerprint does not match their id are ignored.
func (k *Keyring) LoadJSON(data []byte) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return
	}
	for id, v := range raw {
		hexKey, ok := v.(string)
		if !ok {
			continue
		}
		key, err := ParseKey(hexKey)
		if err != nil || len(key) == 0 || KeyID(key) != id {
			continue
		}
		k.keys[id] = key
	}
}

// LoadDir reads <key_id>.key files holding hex keys. A missing directory is
// not an error.
func (k *Keyring) LoadDir(dir string) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.key"))
	if err != nil {
		return err
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		key, err := ParseKey(string(data))
		if err != nil || len(key) == 0 {
			continue
		}
		id := strings.TrimSuffix(filepath.Base(p), ".key")
		if KeyID(key) != id {
			continue
		}
		k.keys[id] = key
	}
	return nil
}

// Lookup returns the key registered for id.
func (k *Keyring) Lookup(id string) ([]byte, bool) {
	key, ok := k.keys[id]
	return key, ok
}

// IDs returns the registered key ids in sorted order.
func (k *Keyring) IDs() []string {
	ids := make([]string, 0, len(k.keys))
	for id := range k.keys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
