// Package initialdata implements the initial-data seeding built-in
// plugin from spec.md §4.7: a one-shot seed applied the first time an
// instance executes a read, keyed by instanceId so remounts get a fresh
// seed opportunity.
package initialdata

import (
	"sync"

	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
)

// Plugin is the built-in initial-data plugin.
type Plugin struct {
	plugin.Base

	mu     sync.Mutex
	seeded map[string]bool // instanceId -> already handled first call
}

// New creates an initial-data plugin.
func New() *Plugin {
	return &Plugin{
		Base:   plugin.Base{PluginName: "initialData", Ops: []schemas.OperationType{schemas.OperationRead}},
		seeded: map[string]bool{},
	}
}

func (p *Plugin) firstCall(instanceID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seeded[instanceID] {
		return false
	}
	p.seeded[instanceID] = true
	return true
}

// Middleware implements plugin.Middleware.
func (p *Plugin) Middleware(ctx *plugin.Context, next plugin.NextFunc) (schemas.Response, error) {
	initialData, hasInitial := ctx.PluginOptions["initialData"]
	first := p.firstCall(ctx.InstanceID)

	if first && hasInitial {
		entry, exists := ctx.StateManager.GetCache(ctx.QueryKey)
		if !exists || entry.State.Data == nil {
			ctx.StateManager.SetCache(ctx.QueryKey, statemanager.SetCacheOptions{
				Data: initialData, HasData: true,
				Timestamp: schemas.NowMillis(), HasTimestamp: true,
			})
			ctx.StateManager.SetMeta(ctx.QueryKey, map[string]any{"isInitialData": true})

			refetchOnInitial, _ := ctx.PluginOptions["refetchOnInitialData"].(bool)
			if !refetchOnInitial {
				return schemas.Response{Status: 200, Data: initialData}, nil
			}

			resp, err := next(ctx)
			if err == nil && resp.Data != nil && resp.Err == nil {
				ctx.StateManager.SetMeta(ctx.QueryKey, map[string]any{"isInitialData": false})
			}
			return resp, err
		}
	}

	resp, err := next(ctx)
	if err == nil && resp.Data != nil && resp.Err == nil {
		ctx.StateManager.SetMeta(ctx.QueryKey, map[string]any{"isInitialData": false})
	}
	return resp, err
}
