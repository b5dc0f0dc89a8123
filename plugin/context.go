package plugin

import (
	"context"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
)

// Tracer emits span-shaped timing data for devtools integrations.
// Grounded on the teacher's schemas.Tracer usage in core/bifrost.go,
// where each plugin hook is wrapped in a named span
// (tracer.StartSpan(ctx, schemas.SpanKindPlugin, pluginName)); generalized
// to a domain-neutral start/end pair since there is no LLM span taxonomy
// here.
type Tracer interface {
	StartSpan(name string) (end func())
}

// EventTracer emits structured devtools events (cache hit/miss,
// short-circuit, plugin error) independent of the timing spans above.
type EventTracer interface {
	Emit(event string, payload any)
}

// Context is the per-call value threaded through middleware, lifecycle
// hooks, and afterResponse (spec.md §4.2's Context field table).
type Context struct {
	OperationType    schemas.OperationType
	Path             string
	Method           schemas.Method
	QueryKey         string
	Tags             []string
	RequestTimestamp int64
	InstanceID       string

	Request *schemas.Request

	StateManager *statemanager.Manager
	EventBus     *eventbus.Bus

	Temp     map[string]any
	Metadata map[string]any

	PluginOptions map[string]any
	ForceRefetch  bool

	Tracer      Tracer
	EventTracer EventTracer

	// Ctx carries the per-execute cancellation signal (spec.md §5's
	// abort signal wired into request.signal). Cancel aborts the
	// transport call in flight for this context.
	Ctx    context.Context
	Cancel context.CancelFunc

	registry map[string]Plugin
}

// Plugin returns the named plugin's exported capability object, or nil
// if the plugin is not registered or exports nothing (spec.md §4.2's
// "plugins.get(name) ... undefined if absent").
func (c *Context) Plugin(name string) any {
	if c.registry == nil {
		return nil
	}
	p, ok := c.registry[name]
	if !ok {
		return nil
	}
	ex, ok := p.(Exporter)
	if !ok {
		return nil
	}
	return ex.Exports(c)
}

// Clone produces a shallow copy suitable for passing as "prev" to
// OnUpdate lifecycle hooks (spec.md §4.3's update(prev) bookkeeping):
// identity fields and service handles are shared, but Temp/Metadata are
// independent maps so later mutation of the live context does not leak
// into the snapshot.
func (c *Context) Clone() *Context {
	clone := *c
	clone.Temp = copyMap(c.Temp)
	clone.Metadata = copyMap(c.Metadata)
	clone.Tags = append([]string(nil), c.Tags...)
	return &clone
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
