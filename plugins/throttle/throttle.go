// Package throttle implements the throttle built-in plugin from
// spec.md §4.7: gates re-dispatch of an unchanged query key to at most
// once per configured window, intended as the last plugin registered so
// it sees the final, debounced query key.
package throttle

import (
	"sync"

	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
)

// Plugin is the built-in throttle plugin.
type Plugin struct {
	plugin.Base

	mu       sync.Mutex
	lastFire map[string]int64 // queryKey -> ms
}

// New creates a throttle plugin.
func New() *Plugin {
	return &Plugin{
		Base:     plugin.Base{PluginName: "throttle", Ops: []schemas.OperationType{schemas.OperationRead}},
		lastFire: map[string]int64{},
	}
}

func resolveMs(ctx *plugin.Context) (int64, bool) {
	v, ok := ctx.PluginOptions["throttle"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// Middleware implements plugin.Middleware.
func (p *Plugin) Middleware(ctx *plugin.Context, next plugin.NextFunc) (schemas.Response, error) {
	if ctx.ForceRefetch {
		return next(ctx)
	}
	ms, ok := resolveMs(ctx)
	if !ok {
		return next(ctx)
	}

	now := schemas.NowMillis()
	p.mu.Lock()
	last, seen := p.lastFire[ctx.QueryKey]
	if seen && now-last < ms {
		p.mu.Unlock()
		if entry, ok := ctx.StateManager.GetCache(ctx.QueryKey); ok && entry.State.Data != nil {
			return schemas.Response{Status: 200, Data: entry.State.Data}, nil
		}
		return schemas.Response{Status: 0}, nil
	}
	p.lastFire[ctx.QueryKey] = now
	p.mu.Unlock()

	return next(ctx)
}
