// Package refetch implements the lifecycle-only refetch-trigger plugin
// from spec.md §4.7: on mount, subscribe to invalidation for this
// entry's tags and (optionally) to focus/reconnect signals; emit a
// "refetch" event on the event bus. InfiniteController re-fetches when
// such an event names one of its keys; the read/write Controller does
// not subscribe to refetch events.
//
// The browser-only signals the spec describes (visibilitychange,
// online) have no server-side Go equivalent, so they are modeled as
// small injectable collaborators (FocusSource/ReconnectSource) a
// framework adapter wires in — consistent with spec.md §1's framework
// bindings being out of this module's scope.
package refetch

import (
	"sync"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
)

// FocusSource notifies when the host application regains foreground
// focus.
type FocusSource interface {
	OnFocus(cb func()) (unsubscribe func())
}

// ReconnectSource notifies when network connectivity is restored.
type ReconnectSource interface {
	OnReconnect(cb func()) (unsubscribe func())
}

// Plugin is the built-in refetch-trigger plugin.
type Plugin struct {
	plugin.Base
	Focus     FocusSource
	Reconnect ReconnectSource

	mu     sync.Mutex
	unsubs map[string][]func()
}

// New creates a refetch plugin. focus/reconnect may be nil if the host
// application has no such signals to offer.
func New(focus FocusSource, reconnect ReconnectSource) *Plugin {
	return &Plugin{
		Base:      plugin.Base{PluginName: "refetch", Ops: []schemas.OperationType{schemas.OperationRead, schemas.OperationInfiniteRead}},
		Focus:     focus,
		Reconnect: reconnect,
		unsubs:    map[string][]func(){},
	}
}

// OnMount implements plugin.Lifecycle.
func (p *Plugin) OnMount(ctx *plugin.Context) error {
	var subs []func()

	if len(ctx.Tags) > 0 {
		unsub := ctx.EventBus.SubscribeInvalidate(ctx.Tags, func([]string) {
			ctx.EventBus.PublishRefetch(ctx.QueryKey, eventbus.ReasonInvalidate)
		})
		subs = append(subs, unsub)
	}

	if onFocus, _ := ctx.PluginOptions["refetchOnFocus"].(bool); onFocus && p.Focus != nil {
		unsub := p.Focus.OnFocus(func() {
			ctx.EventBus.PublishRefetch(ctx.QueryKey, eventbus.ReasonFocus)
		})
		subs = append(subs, unsub)
	}

	if onReconnect, _ := ctx.PluginOptions["refetchOnReconnect"].(bool); onReconnect && p.Reconnect != nil {
		unsub := p.Reconnect.OnReconnect(func() {
			ctx.EventBus.PublishRefetch(ctx.QueryKey, eventbus.ReasonReconnect)
		})
		subs = append(subs, unsub)
	}

	p.mu.Lock()
	p.unsubs[ctx.QueryKey] = subs
	p.mu.Unlock()
	return nil
}

// OnUnmount implements plugin.Lifecycle.
func (p *Plugin) OnUnmount(ctx *plugin.Context) error {
	p.mu.Lock()
	subs := p.unsubs[ctx.QueryKey]
	delete(p.unsubs, ctx.QueryKey)
	p.mu.Unlock()

	for _, unsub := range subs {
		unsub()
	}
	return nil
}

// OnUpdate implements plugin.Lifecycle. Refetch triggers have no
// per-update bookkeeping.
func (p *Plugin) OnUpdate(ctx, prev *plugin.Context) error { return nil }
