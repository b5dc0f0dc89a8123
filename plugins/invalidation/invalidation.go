// Package invalidation implements the write-completion invalidation
// plugin spec.md §4.3/§4.7 reference ("via the invalidation plugin if
// present") without fully specifying: by default, a successful write
// marks every cache entry sharing the write's tags stale and publishes
// an invalidate event; the optimistic plugin can suppress this for the
// duration of a single call via the exported handle, since it has
// already applied the equivalent cache writes itself.
package invalidation

import (
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
)

// Mode controls whether AfterResponse auto-invalidates.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeNone Mode = "none"
)

const tempKey = "invalidation.mode"

// Plugin is the built-in invalidation plugin.
type Plugin struct {
	plugin.Base
}

// New creates an invalidation plugin participating in write and queue
// operations (spec.md §4.5: a queue item dispatches "via the same
// middleware chain as a write").
func New() *Plugin {
	return &Plugin{Base: plugin.Base{PluginName: "invalidation", Ops: []schemas.OperationType{schemas.OperationWrite, schemas.OperationQueue}}}
}

// Handle is the per-call capability returned by Exports; the mode it
// sets is stored in ctx.Temp so it cannot leak across concurrent calls
// sharing this plugin instance (spec.md §4.2: Temp is a per-call
// scratch map).
type Handle struct {
	ctx *plugin.Context
}

// SetDefaultMode overrides this call's invalidation behavior. The
// optimistic plugin calls SetDefaultMode("none") before invoking next()
// so a mutation's own success does not re-invalidate the caches it just
// wrote optimistically.
func (h *Handle) SetDefaultMode(mode string) {
	h.ctx.Temp[tempKey] = Mode(mode)
}

// Exports implements plugin.Exporter.
func (p *Plugin) Exports(ctx *plugin.Context) any {
	return &Handle{ctx: ctx}
}

func modeFor(ctx *plugin.Context) Mode {
	if v, ok := ctx.Temp[tempKey]; ok {
		if m, ok := v.(Mode); ok {
			return m
		}
	}
	return ModeAuto
}

// AfterResponse implements plugin.AfterResponder.
func (p *Plugin) AfterResponse(ctx *plugin.Context, resp schemas.Response) (schemas.Response, error) {
	if modeFor(ctx) == ModeNone {
		return resp, nil
	}
	if resp.Data != nil && resp.Err == nil && len(ctx.Tags) > 0 {
		ctx.StateManager.MarkStale(ctx.Tags)
		ctx.EventBus.PublishInvalidate(ctx.Tags)
	}
	return resp, nil
}
