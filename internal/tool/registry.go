package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/felixgeelhaar/toolgate/internal/errors"
)

// Handler executes a tool with its invocation arguments. A returned error is
// a handler fault; a tool that merely declines returns an Output with OK
// false instead.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any) (Output, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, args map[string]any) (Output, error)

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any) (Output, error) {
	return f(ctx, args)
}

// Registry maps tool names to handlers. Each run builds its own registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds h under name. Names are unique within a registry.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("tool name must be non-empty")
	}
	if h == nil {
		return fmt.Errorf("tool %s: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return errors.New(errors.ErrCodePluginDuplicate, fmt.Sprintf("tool already registered: %s", name)).
			WithSuggestion("Give each plugin in the manifest a distinct name")
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
