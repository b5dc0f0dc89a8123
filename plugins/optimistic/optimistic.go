// Package optimistic implements the optimistic-update built-in plugin
// from spec.md §4.7: a write-only middleware that applies speculative
// cache writes before the transport call settles, then confirms or rolls
// them back based on the outcome.
//
// The JS original resolves "targets" via a tracking proxy that records
// property/call accesses. Go has no such reflection-free proxy, and
// spec.md §9's Design Notes anticipates exactly this: "in strongly-typed
// or reflection-free target languages, replace the proxy with an
// explicit builder value constructed by the user." TargetFor below is
// that builder.
package optimistic

import (
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/plugins/invalidation"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
)

// Target describes one speculative-update site: which cached entries to
// touch and how.
type Target struct {
	path            string
	method          schemas.Method
	where           func(decodedOptions any) bool
	updater         func(current any, serverData any) any
	onSuccess       func(current any, serverData any) any
	onError         func()
	rollbackOnError bool
}

// TargetFor begins a fluent target builder for entries self-tagged with
// path (spec.md §9's builder-value alternative to the tracking proxy).
func TargetFor(path string) *Target {
	return &Target{path: path, method: schemas.MethodGet, rollbackOnError: true}
}

func (t *Target) GET() *Target    { t.method = schemas.MethodGet; return t }
func (t *Target) POST() *Target   { t.method = schemas.MethodPost; return t }
func (t *Target) PUT() *Target    { t.method = schemas.MethodPut; return t }
func (t *Target) PATCH() *Target  { t.method = schemas.MethodPatch; return t }
func (t *Target) DELETE() *Target { t.method = schemas.MethodDelete; return t }

// WHERE restricts matches to cache entries whose decoded request
// options satisfy pred.
func (t *Target) WHERE(pred func(decodedOptions any) bool) *Target {
	t.where = pred
	return t
}

// UPDATE_CACHE sets the speculative updater, applied once before the
// write is sent (with nil server data). On success the entry keeps that
// value unless ON_SUCCESS supplies a function applied with the server's
// response data.
func (t *Target) UPDATE_CACHE(updater func(current any, serverData any) any) *Target {
	t.updater = updater
	return t
}

// ON_SUCCESS overrides the confirmation step's update with a function of
// (current, serverData).
func (t *Target) ON_SUCCESS(fn func(current any, serverData any) any) *Target {
	t.onSuccess = fn
	return t
}

// ON_ERROR registers a callback invoked when the write fails.
func (t *Target) ON_ERROR(fn func()) *Target {
	t.onError = fn
	return t
}

// NO_ROLLBACK disables automatic rollback on error for this target.
func (t *Target) NO_ROLLBACK() *Target {
	t.rollbackOnError = false
	return t
}

// Resolver computes the set of targets for one write call.
type Resolver func(ctx *plugin.Context) []*Target

// Plugin is the built-in optimistic-update plugin.
type Plugin struct {
	plugin.Base
}

// New creates an optimistic plugin.
func New() *Plugin {
	return &Plugin{Base: plugin.Base{PluginName: "optimistic", Ops: []schemas.OperationType{schemas.OperationWrite}}}
}

type snapshot struct {
	key             string
	previousData    any
	target          *Target
}

// Middleware implements plugin.Middleware.
func (p *Plugin) Middleware(ctx *plugin.Context, next plugin.NextFunc) (schemas.Response, error) {
	resolverVal, ok := ctx.PluginOptions["optimisticTargets"]
	if !ok {
		return next(ctx)
	}
	resolver, ok := resolverVal.(Resolver)
	if !ok {
		return next(ctx)
	}

	targets := resolver(ctx)
	snapshots := p.resolveSnapshots(ctx, targets)
	if len(snapshots) == 0 {
		return next(ctx)
	}

	if inv, ok := ctx.Plugin("invalidation").(*invalidation.Handle); ok {
		inv.SetDefaultMode("none")
	}

	p.applyOptimistically(ctx, snapshots)

	resp, err := next(ctx)

	if err != nil || resp.Err != nil {
		p.rollback(ctx, snapshots)
		return resp, err
	}

	p.confirm(ctx, snapshots, resp.Data)
	return resp, nil
}

func (p *Plugin) resolveSnapshots(ctx *plugin.Context, targets []*Target) []snapshot {
	var out []snapshot
	for _, t := range targets {
		for _, ke := range ctx.StateManager.GetCacheEntriesBySelfTag(t.path) {
			method, ok := schemas.MethodFromQueryKey(ke.Key)
			if !ok || method != t.method {
				continue
			}
			if t.where != nil {
				decoded, _ := schemas.DecodeOptionsFromQueryKey(ke.Key)
				if !t.where(decoded) {
					continue
				}
			}
			out = append(out, snapshot{key: ke.Key, previousData: ke.Entry.State.Data, target: t})
		}
	}
	return out
}

func (p *Plugin) applyOptimistically(ctx *plugin.Context, snapshots []snapshot) {
	for _, s := range snapshots {
		if s.target.updater == nil {
			continue
		}
		newData := s.target.updater(s.previousData, nil)
		ctx.StateManager.SetCache(s.key, statemanager.SetCacheOptions{
			PreviousData: s.previousData, HasPreviousData: true,
			Data: newData, HasData: true,
		})
		ctx.StateManager.SetMeta(s.key, map[string]any{"isOptimistic": true})
	}
}

func (p *Plugin) rollback(ctx *plugin.Context, snapshots []snapshot) {
	for _, s := range snapshots {
		if s.target.rollbackOnError {
			ctx.StateManager.SetCache(s.key, statemanager.SetCacheOptions{
				Data: s.previousData, HasData: true,
				PreviousData: nil, HasPreviousData: true,
			})
			ctx.StateManager.SetMeta(s.key, map[string]any{"isOptimistic": false})
		}
		if s.target.onError != nil {
			s.target.onError()
		}
	}
}

func (p *Plugin) confirm(ctx *plugin.Context, snapshots []snapshot, serverData any) {
	for _, s := range snapshots {
		ctx.StateManager.SetMeta(s.key, map[string]any{"isOptimistic": false})
		if s.target.onSuccess == nil {
			ctx.StateManager.SetCache(s.key, statemanager.SetCacheOptions{PreviousData: nil, HasPreviousData: true})
			continue
		}
		current, _ := ctx.StateManager.GetCache(s.key)
		updated := s.target.onSuccess(current.State.Data, serverData)
		ctx.StateManager.SetCache(s.key, statemanager.SetCacheOptions{
			Data: updated, HasData: true,
			PreviousData: nil, HasPreviousData: true,
		})
	}
}
