package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Canonicalize returns the canonical JSON form of v: compact, map keys
// sorted at every depth, HTML characters unescaped and numbers preserved
// exactly as first encoded.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	tree, err := decodeTree(raw)
	if err != nil {
		return nil, err
	}
	return encodeCanonical(tree)
}

// decodeTree parses exactly one JSON value, keeping numbers as json.Number.
func decodeTree(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("decode record: trailing data after JSON value")
	}
	return tree, nil
}

// encodeCanonical relies on encoding/json sorting map keys.
func encodeCanonical(tree any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return nil, fmt.Errorf("encode canonical record: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
