package tool

import (
	"context"
	"fmt"
	"unicode/utf8"
)

const summaryLen = 160

// Echo returns its "msg" argument. An empty message is declined.
func Echo(_ context.Context, args map[string]any) (Output, error) {
	msg := stringArg(args, "msg")
	if msg == "" {
		return Fail("empty msg"), nil
	}
	return Succeed(msg, &Evidence{Coverage: 0.80, Sources: []string{"echo", "caller"}}), nil
}

// Summarize shortens its "text" argument to a fixed length summary.
func Summarize(_ context.Context, args map[string]any) (Output, error) {
	text := stringArg(args, "text")
	if text == "" {
		return Fail("missing text"), nil
	}
	summary := text
	if utf8.RuneCountInString(text) > summaryLen {
		summary = string([]rune(text)[:summaryLen]) + "…"
	}
	return Succeed(
		map[string]any{"summary": summary},
		&Evidence{Coverage: 0.85, Sources: []string{"legacy", "meta"}},
	), nil
}

// RegisterBuiltins adds the in-process tools to r.
func RegisterBuiltins(r *Registry) error {
	builtins := map[string]HandlerFunc{
		"echo":      Echo,
		"summarize": Summarize,
	}
	for _, name := range []string{"echo", "summarize"} {
		if err := r.Register(name, builtins[name]); err != nil {
			return err
		}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
