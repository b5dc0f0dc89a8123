// Package debounce implements the debounce built-in plugin from
// spec.md §4.7: coalesces rapid successive calls to the same logical
// endpoint (path:method) into a single refetch fired after the quiet
// period elapses.
package debounce

import (
	"sync"
	"time"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
)

type tracked struct {
	timer          *time.Timer
	latestQueryKey string
}

// Plugin is the built-in debounce plugin.
type Plugin struct {
	plugin.Base

	mu      sync.Mutex
	entries map[string]*tracked // stableKey -> tracked
}

// New creates a debounce plugin.
func New() *Plugin {
	return &Plugin{
		Base:    plugin.Base{PluginName: "debounce", Ops: []schemas.OperationType{schemas.OperationRead}},
		entries: map[string]*tracked{},
	}
}

func stableKey(ctx *plugin.Context) string {
	return ctx.Path + ":" + string(ctx.Method)
}

func resolveMs(ctx *plugin.Context) (int64, bool) {
	v, ok := ctx.PluginOptions["debounce"]
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

func cachedOrEmpty(ctx *plugin.Context) schemas.Response {
	if entry, ok := ctx.StateManager.GetCache(ctx.QueryKey); ok && entry.State.Data != nil {
		return schemas.Response{Status: 200, Data: entry.State.Data}
	}
	return schemas.Response{Status: 0}
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

	sk := stableKey(ctx)
	bus := ctx.EventBus
	queryKey := ctx.QueryKey

	p.mu.Lock()
	t, exists := p.entries[sk]
	if exists && t.latestQueryKey == queryKey {
		p.mu.Unlock()
		return cachedOrEmpty(ctx), nil
	}
	if exists && t.timer != nil {
		t.timer.Stop()
	} else {
		t = &tracked{}
		p.entries[sk] = t
	}
	t.latestQueryKey = queryKey
	t.timer = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		bus.PublishRefetch(queryKey, eventbus.ReasonManual)
	})
	p.mu.Unlock()

	return cachedOrEmpty(ctx), nil
}

// OnMount implements plugin.Lifecycle; debounce has no mount-time setup.
func (p *Plugin) OnMount(ctx *plugin.Context) error { return nil }

// OnUnmount clears any outstanding timer and tracker for this stable
// key (spec.md §4.7).
func (p *Plugin) OnUnmount(ctx *plugin.Context) error {
	sk := stableKey(ctx)
	p.mu.Lock()
	if t, ok := p.entries[sk]; ok {
		if t.timer != nil {
			t.timer.Stop()
		}
		delete(p.entries, sk)
	}
	p.mu.Unlock()
	return nil
}

// OnUpdate implements plugin.Lifecycle; debounce has no per-update
// bookkeeping.
func (p *Plugin) OnUpdate(ctx, prev *plugin.Context) error { return nil }
