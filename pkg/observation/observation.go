// Package observation is the pluggable world-state snapshot source pasted
// into a discussion prompt ahead of each LLM call. Its single-method port
// style is grounded on the teacher's pkg/swarm/core/interfaces.go narrow
// port interfaces (SwarmStore, SharedMemory, LLMClient).
package observation

import "context"

// Func is a named observation source: a callable that returns a string
// snapshot of whatever world state the caller wants folded into the
// discussion prompt. kwargs is the session's obs_kwargs, passed through
// unchanged on every call for that session's lifetime. It may block
// indefinitely (an external world-state HTTP endpoint, a sensor poll) per
// the suspension-point contract.
type Func interface {
	Observe(ctx context.Context, kwargs map[string]any) (string, error)
}

// FuncAdapter lets a plain func satisfy Func without a dedicated type.
type FuncAdapter func(ctx context.Context, kwargs map[string]any) (string, error)

func (f FuncAdapter) Observe(ctx context.Context, kwargs map[string]any) (string, error) {
	return f(ctx, kwargs)
}

// Dummy always returns an empty snapshot; it is the default observation
// source when no world-state adapter is configured.
var Dummy Func = FuncAdapter(func(context.Context, map[string]any) (string, error) { return "", nil })

// Registry resolves a configured observation_func name (e.g. "dummy") to a
// concrete Func, mirroring the teacher's named-port resolution style rather
// than a compiled-in switch per caller.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	r.Register("dummy", Dummy)
	return r
}

func (r *Registry) Register(name string, f Func) {
	r.funcs[name] = f
}

func (r *Registry) Get(name string) (Func, bool) {
	f, ok := r.funcs[name]
	return f, ok
}
