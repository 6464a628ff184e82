package orchestrator

import (
	"context"
	"sync"

	taskerrors "github.com/corelane/taskcore/pkg/errors"
)

// ToolResult is what a ToolHandler reports back to the caller. Exactly one
// of Content or Error is meaningful, selected by OK.
type ToolResult struct {
	OK       bool
	Content  string
	Error    string
	Metadata map[string]any
}

// ToolHandler implements one named tool. args is an opaque, handler-defined
// encoding (typically JSON) of the tool's arguments.
type ToolHandler func(ctx context.Context, args string) ToolResult

// Interceptor observes tool execution for cross-cutting concerns (audit
// logging, allow-listing) without the registry or the handlers needing to
// know about policy.
type Interceptor interface {
	// Intercept runs before dispatch; a non-nil error prevents the handler
	// from running and is surfaced as a failure ToolResult.
	Intercept(ctx context.Context, toolName string, args string) error

	// PostExecute runs after the handler returns, success or failure.
	PostExecute(ctx context.Context, toolName string, args string, result ToolResult)
}

// ToolRegistry maps tool names to handlers.
type ToolRegistry struct {
	mu          sync.RWMutex
	handlers    map[string]ToolHandler
	interceptor Interceptor
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]ToolHandler)}
}

// SetInterceptor installs (or clears, with nil) the registry's interceptor.
func (r *ToolRegistry) SetInterceptor(interceptor Interceptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interceptor = interceptor
}

// Register adds a handler under name. Re-registering an existing name
// replaces it.
func (r *ToolRegistry) Register(name string, handler ToolHandler) error {
	if name == "" {
		return &taskerrors.ValidationError{Field: "name", Message: "tool name must not be empty"}
	}
	if handler == nil {
		return &taskerrors.ValidationError{Field: "handler", Message: "tool handler must not be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
	return nil
}

// Unregister removes a handler, reporting whether one was present. It is
// not an error to unregister a name that was never registered.
func (r *ToolRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handlers[name]
	delete(r.handlers, name)
	return ok
}

// Names returns every registered tool name.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Execute runs the named tool. A request for an unregistered tool yields a
// failure ToolResult without attempting dispatch; it never returns a
// top-level error for that case alone.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args string) ToolResult {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	interceptor := r.interceptor
	r.mu.RUnlock()

	if !ok {
		return ToolResult{OK: false, Error: "tool not registered: " + name}
	}

	if interceptor != nil {
		if err := interceptor.Intercept(ctx, name, args); err != nil {
			result := ToolResult{OK: false, Error: "intercepted: " + err.Error()}
			interceptor.PostExecute(ctx, name, args, result)
			return result
		}
	}

	result := handler(ctx, args)

	if interceptor != nil {
		interceptor.PostExecute(ctx, name, args, result)
	}
	return result
}
