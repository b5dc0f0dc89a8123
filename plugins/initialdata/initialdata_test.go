package initialdata

import (
	"testing"

	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/stretchr/testify/require"
)

func TestInitialData_SeedsOnFirstCallThenShortCircuits(t *testing.T) {
	p := New()
	sm := statemanager.New()
	ctx := &plugin.Context{
		QueryKey:      "k",
		InstanceID:    "i1",
		StateManager:  sm,
		PluginOptions: map[string]any{"initialData": "seed"},
	}

	calls := 0
	resp, err := p.Middleware(ctx, func(*plugin.Context) (schemas.Response, error) {
		calls++
		return schemas.Response{Status: 200, Data: "network"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 0, calls)
	require.Equal(t, "seed", resp.Data)

	entry, ok := sm.GetCache("k")
	require.True(t, ok)
	require.Equal(t, true, entry.Meta["isInitialData"])
}

func TestInitialData_RefetchOnInitialDataProceedsAndClearsFlag(t *testing.T) {
	p := New()
	sm := statemanager.New()
	ctx := &plugin.Context{
		QueryKey:      "k",
		InstanceID:    "i1",
		StateManager:  sm,
		PluginOptions: map[string]any{"initialData": "seed", "refetchOnInitialData": true},
	}

	resp, err := p.Middleware(ctx, func(*plugin.Context) (schemas.Response, error) {
		return schemas.Response{Status: 200, Data: "network"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "network", resp.Data)

	entry, ok := sm.GetCache("k")
	require.True(t, ok)
	require.Equal(t, false, entry.Meta["isInitialData"])
}

func TestInitialData_SubsequentCallsPassThrough(t *testing.T) {
	p := New()
	sm := statemanager.New()
	ctx := &plugin.Context{
		QueryKey:      "k",
		InstanceID:    "i1",
		StateManager:  sm,
		PluginOptions: map[string]any{"initialData": "seed"},
	}
	_, _ = p.Middleware(ctx, func(*plugin.Context) (schemas.Response, error) {
		return schemas.Response{Status: 200, Data: "network"}, nil
	})

	calls := 0
	resp, err := p.Middleware(ctx, func(*plugin.Context) (schemas.Response, error) {
		calls++
		return schemas.Response{Status: 200, Data: "network-2"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, "network-2", resp.Data)
}
