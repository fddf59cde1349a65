// Package adapter bridges external tools into the registry. A process adapter
// exchanges one JSON object with a subprocess over stdin/stdout; an HTTP
// adapter POSTs the same object to an endpoint. Every failure, including
// protocol violations, comes back as a rejected tool.Output rather than an
// error.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/felixgeelhaar/toolgate/internal/audit"
	"github.com/felixgeelhaar/toolgate/internal/tool"
)

// DefaultCoverage is assumed when an external tool reports no coverage.
const DefaultCoverage = 0.80

// Adapter runs one operation against an external tool.
type Adapter interface {
	Name() string
	Run(ctx context.Context, op string, params map[string]any) tool.Output
}

// request is the wire request shared by every adapter.
type request struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params"`
}

func encodeRequest(op string, params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	return json.Marshal(request{Op: op, Params: params})
}

// response is the wire response shared by every adapter.
type response struct {
	OK       *bool         `json:"ok"`
	Result   any           `json:"result"`
	Evidence *wireEvidence `json:"evidence"`
	Reasons  []string      `json:"reasons"`
}

type wireEvidence struct {
	Coverage any      `json:"coverage"`
	Sources  []string `json:"sources"`
}

// decodeResponse parses exactly one JSON object. The returned kind names the
// class of failure for the bad_json reason.
func decodeResponse(data []byte) (response, string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return response{}, "empty", fmt.Errorf("no response object")
	}
	if trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return response{}, "type", fmt.Errorf("response is not a JSON object")
		}
		return response{}, "syntax", fmt.Errorf("response is not JSON")
	}

	var resp response
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(&resp); err != nil {
		return response{}, jsonErrorKind(err), err
	}
	if _, err := dec.Token(); err != io.EOF {
		return response{}, "trailing", fmt.Errorf("trailing data after response object")
	}
	return resp, "", nil
}

func jsonErrorKind(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "empty"
	case errors.Is(err, io.ErrUnexpectedEOF), errors.As(err, &syntaxErr):
		return "syntax"
	case errors.As(err, &typeErr):
		return "type"
	default:
		return "decode"
	}
}

// normalize converts a wire response into a tool output. Successful outputs
// always carry evidence: missing coverage defaults to DefaultCoverage and
// missing sources to the adapter's own name.
func normalize(name string, resp response) tool.Output {
	ok := resp.OK != nil && *resp.OK
	if !ok {
		return tool.Output{OK: false, Result: resp.Result, Reasons: resp.Reasons}
	}

	ev := &tool.Evidence{Coverage: DefaultCoverage, Sources: []string{name}}
	if resp.Evidence != nil {
		if resp.Evidence.Coverage != nil {
			ev.Coverage = resp.Evidence.Coverage
		}
		if len(resp.Evidence.Sources) > 0 {
			ev.Sources = resp.Evidence.Sources
		}
	}
	return tool.Output{OK: true, Result: resp.Result, Evidence: ev, Reasons: resp.Reasons}
}

func badJSON(kind string, raw []byte) tool.Output {
	reasons := []string{"bad_json:" + kind}
	if len(raw) > 0 {
		reasons = append(reasons, short(string(raw)))
	}
	return tool.Fail(reasons...)
}

func short(s string) string {
	return audit.Truncate(s, audit.MaxDetailLen)
}
