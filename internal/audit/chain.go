package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"strings"
)

// Sign computes the chain value that follows prev for a canonical record.
func Sign(key []byte, prev string, canonical []byte) string {
	var h hash.Hash
	if len(key) == 0 {
		h = sha256.New()
	} else {
		h = hmac.New(sha256.New, key)
	}
	h.Write([]byte(prev))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateChain reports whether lines form an intact chain under key.
// An empty input is trivially valid.
func ValidateChain(lines []string, key []byte) bool {
	return FirstDivergence(lines, key) < 0
}

// FirstDivergence replays the chain from an empty prev and returns the index
// of the first line that does not verify, or -1 if all lines verify. A line
// that does not parse as a JSON object diverges.
func FirstDivergence(lines []string, key []byte) int {
	prev := ""
	for i, line := range lines {
		tree, err := decodeTree([]byte(line))
		if err != nil {
			return i
		}
		record, ok := tree.(map[string]any)
		if !ok {
			return i
		}

		stored, ok := record["chain"].(string)
		if !ok {
			return i
		}
		delete(record, "chain")

		if p, ok := record["prev"].(string); !ok || p != prev {
			return i
		}

		canonical, err := encodeCanonical(record)
		if err != nil {
			return i
		}
		if !hmac.Equal([]byte(Sign(key, prev, canonical)), []byte(stored)) {
			return i
		}
		prev = stored
	}
	return -1
}

// ReadLines reads an audit file into lines, dropping the final newline.
func ReadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}
	return SplitLines(string(data)), nil
}

// SplitLines splits on newlines, tolerating CRLF and a missing or present
// trailing newline.
func SplitLines(data string) []string {
	if data == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(data, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
