package audit

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf8"
)

// MaxDetailLen is the rune limit for string detail values.
const MaxDetailLen = 200

const ellipsis = "…"

// Event is one line of the audit log.
type Event struct {
	TS      float64        `json:"ts"`
	Trace   string         `json:"trace"`
	Type    string         `json:"type"`
	Details map[string]any `json:"details"`
	Prev    string         `json:"prev"`
	KeyID   string         `json:"key_id,omitempty"`
	Chain   string         `json:"chain,omitempty"`
}

// Truncate shortens s to n runes, appending an ellipsis when it was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + ellipsis
}

// Redact returns a copy of details with long strings truncated. Other values
// pass through unchanged, except values JSON cannot encode, which are
// recorded by their printed form.
func Redact(details map[string]any) map[string]any {
	out := make(map[string]any, len(details))
	for k, v := range details {
		switch val := v.(type) {
		case string:
			out[k] = Truncate(val, MaxDetailLen)
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				out[k] = fmt.Sprintf("%v", val)
				continue
			}
			out[k] = val
		case nil, bool, int, int64, []string:
			out[k] = val
		default:
			if _, err := json.Marshal(val); err != nil {
				out[k] = Truncate(fmt.Sprintf("%v", val), MaxDetailLen)
				continue
			}
			out[k] = val
		}
	}
	return out
}

// ParseEvent decodes one audit line. It does not check the chain.
func ParseEvent(line string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		return Event{}, fmt.Errorf("decode audit event: %w", err)
	}
	return ev, nil
}
