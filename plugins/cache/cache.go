// Package cache implements the cache TTL/staleness built-in plugin from
// spec.md §4.7: a middleware that short-circuits reads within a
// configurable staleTime window and write-throughs successful
// responses.
package cache

import (
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
)

// Plugin is the built-in cache plugin.
type Plugin struct {
	plugin.Base
	DefaultStaleTime int64 // milliseconds
}

// New creates a cache plugin with the given global default staleTime in
// milliseconds (0 means "always stale", per spec.md's default).
func New(defaultStaleTime int64) *Plugin {
	return &Plugin{
		Base:             plugin.Base{PluginName: "cache", Ops: []schemas.OperationType{schemas.OperationRead}},
		DefaultStaleTime: defaultStaleTime,
	}
}

func (p *Plugin) staleTime(ctx *plugin.Context) int64 {
	if v, ok := ctx.PluginOptions["staleTime"]; ok {
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		}
	}
	return p.DefaultStaleTime
}

// Middleware implements plugin.Middleware.
func (p *Plugin) Middleware(ctx *plugin.Context, next plugin.NextFunc) (schemas.Response, error) {
	if !ctx.ForceRefetch {
		entry, ok := ctx.StateManager.GetCache(ctx.QueryKey)
		if ok && entry.State.Data != nil && !entry.Stale {
			if schemas.NowMillis()-entry.State.Timestamp <= p.staleTime(ctx) {
				return schemas.Response{Status: 200, Data: entry.State.Data}, nil
			}
		}
	}

	resp, err := next(ctx)
	if err != nil {
		return resp, err
	}

	switch {
	case resp.Data != nil && resp.Err == nil:
		ctx.StateManager.SetCache(ctx.QueryKey, statemanager.SetCacheOptions{
			Data: resp.Data, HasData: true,
			Err: nil, HasErr: true,
			Timestamp: schemas.NowMillis(), HasTimestamp: true,
			Stale: false, HasStale: true,
		})
	case resp.Err != nil:
		ctx.StateManager.SetCache(ctx.QueryKey, statemanager.SetCacheOptions{
			Err: resp.Err, HasErr: true,
		})
	}
	return resp, nil
}
