package refetch

import (
	"testing"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/plugin"
	"github.com/stretchr/testify/require"
)

type stubFocus struct {
	cb func()
}

func (s *stubFocus) OnFocus(cb func()) func() {
	s.cb = cb
	return func() { s.cb = nil }
}

func (s *stubFocus) fire() {
	if s.cb != nil {
		s.cb()
	}
}

func TestRefetch_InvalidateTriggersRefetchEvent(t *testing.T) {
	p := New(nil, nil)
	bus := eventbus.New()
	ctx := &plugin.Context{QueryKey: "k", Tags: []string{"posts"}, EventBus: bus, PluginOptions: map[string]any{}}
	require.NoError(t, p.OnMount(ctx))

	var got eventbus.RefetchEvent
	bus.SubscribeRefetch(nil, func(ev eventbus.RefetchEvent) { got = ev })

	bus.PublishInvalidate([]string{"posts"})
	require.Equal(t, "k", got.QueryKey)
	require.Equal(t, eventbus.ReasonInvalidate, got.Reason)
}

func TestRefetch_OnFocusGatedByPluginOption(t *testing.T) {
	focus := &stubFocus{}
	p := New(focus, nil)
	bus := eventbus.New()
	ctx := &plugin.Context{QueryKey: "k", EventBus: bus, PluginOptions: map[string]any{"refetchOnFocus": true}}
	require.NoError(t, p.OnMount(ctx))

	fired := false
	bus.SubscribeRefetch(nil, func(ev eventbus.RefetchEvent) {
		if ev.Reason == eventbus.ReasonFocus {
			fired = true
		}
	})
	focus.fire()
	require.True(t, fired)
}

func TestRefetch_UnmountRemovesListeners(t *testing.T) {
	focus := &stubFocus{}
	p := New(focus, nil)
	bus := eventbus.New()
	ctx := &plugin.Context{QueryKey: "k", EventBus: bus, PluginOptions: map[string]any{"refetchOnFocus": true}}
	require.NoError(t, p.OnMount(ctx))
	require.NoError(t, p.OnUnmount(ctx))

	require.Nil(t, focus.cb)
}
