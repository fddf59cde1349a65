package adapter

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/toolgate/internal/tool"
)

// AsHandler exposes a as an ordinary tool. The operation comes from the "op"
// or "operation" argument; parameters come from a "params" mapping or, when
// that is absent, from the remaining arguments.
func AsHandler(a Adapter) tool.Handler {
	return tool.HandlerFunc(func(ctx context.Context, args map[string]any) (tool.Output, error) {
		op := opArg(args)
		if op == "" {
			return tool.Fail("missing op"), nil
		}

		var params map[string]any
		if raw, ok := args["params"]; ok && raw != nil {
			m, ok := raw.(map[string]any)
			if !ok {
				return tool.Fail("params must be a mapping"), nil
			}
			params = m
		} else {
			params = make(map[string]any, len(args))
			for k, v := range args {
				if k == "op" || k == "operation" || k == "params" {
					continue
				}
				params[k] = v
			}
		}

		return a.Run(ctx, op, params), nil
	})
}

func opArg(args map[string]any) string {
	for _, key := range []string{"op", "operation"} {
		v, ok := args[key]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		if s != "" {
			return s
		}
	}
	return ""
}
