package invalidation

import (
	"testing"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/stretchr/testify/require"
)

func TestInvalidation_MarksStaleAndPublishesByDefault(t *testing.T) {
	p := New()
	sm := statemanager.New()
	bus := eventbus.New()
	sm.SetCache("other", statemanager.SetCacheOptions{Tags: []string{"posts"}, HasTags: true})

	var invalidated []string
	bus.SubscribeInvalidate([]string{"posts"}, func(tags []string) { invalidated = tags })

	ctx := &plugin.Context{Tags: []string{"posts"}, StateManager: sm, EventBus: bus, Temp: map[string]any{}}
	resp, err := p.AfterResponse(ctx, schemas.Response{Status: 200, Data: "ok"})
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Data)

	entry, _ := sm.GetCache("other")
	require.True(t, entry.Stale)
	require.Equal(t, []string{"posts"}, invalidated)
}

func TestInvalidation_SetDefaultModeNoneSuppressesThisCall(t *testing.T) {
	p := New()
	sm := statemanager.New()
	bus := eventbus.New()
	sm.SetCache("other", statemanager.SetCacheOptions{Tags: []string{"posts"}, HasTags: true})

	ctx := &plugin.Context{Tags: []string{"posts"}, StateManager: sm, EventBus: bus, Temp: map[string]any{}}
	handle := p.Exports(ctx).(*Handle)
	handle.SetDefaultMode("none")

	_, err := p.AfterResponse(ctx, schemas.Response{Status: 200, Data: "ok"})
	require.NoError(t, err)

	entry, _ := sm.GetCache("other")
	require.False(t, entry.Stale, "suppressed call must not invalidate")
}
