package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/plugins/cache"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/stretchr/testify/require"
)

// TestController_CacheHitWithinStaleTime grounds S1: a second execute
// within staleTime must not invoke the transport and must return the
// first commit's data.
func TestController_CacheHitWithinStaleTime(t *testing.T) {
	var calls atomic.Int32
	tr := func(context.Context, string, schemas.Method, schemas.Request) (schemas.Response, error) {
		calls.Add(1)
		return schemas.Response{Status: 200, Data: map[string]any{"id": 1}}, nil
	}

	ex, err := plugin.NewExecutor([]plugin.Plugin{cache.New(0)})
	require.NoError(t, err)
	c := New(Config{
		Path: "/posts/1", Method: schemas.MethodGet, OperationType: schemas.OperationRead,
		Tags: []string{"posts"}, Executor: ex, StateManager: statemanager.New(), EventBus: eventbus.New(),
		Transport: tr,
	})

	opts := schemas.RequestOptions{PluginOptions: map[string]any{"staleTime": int64(1000)}}

	resp1, err := c.Execute(context.Background(), opts, false)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": 1}, resp1.Data)
	require.EqualValues(t, 1, calls.Load())

	resp2, err := c.Execute(context.Background(), opts, false)
	require.NoError(t, err)
	require.Equal(t, 200, resp2.Status)
	require.Equal(t, map[string]any{"id": 1}, resp2.Data)
	require.EqualValues(t, 1, calls.Load(), "a cache hit within staleTime must not re-invoke the transport")
}

// TestController_DedupOfConcurrentReads grounds S2: three concurrent
// Execute calls to the same key produce exactly one transport
// invocation, and every caller observes the same response.
func TestController_DedupOfConcurrentReads(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	tr := func(context.Context, string, schemas.Method, schemas.Request) (schemas.Response, error) {
		calls.Add(1)
		<-release
		return schemas.Response{Status: 200, Data: map[string]any{"id": 1}}, nil
	}

	ex, err := plugin.NewExecutor(nil)
	require.NoError(t, err)
	c := New(Config{
		Path: "/posts/1", Method: schemas.MethodGet, OperationType: schemas.OperationRead,
		Executor: ex, StateManager: statemanager.New(), EventBus: eventbus.New(),
		Transport: tr,
	})

	var wg sync.WaitGroup
	results := make([]schemas.Response, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Execute(context.Background(), schemas.RequestOptions{}, false)
			require.NoError(t, err)
			results[i] = resp
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, calls.Load(), "exactly one transport invocation must occur for concurrent reads of the same key")
	for _, r := range results {
		require.Equal(t, results[0].Data, r.Data)
	}
}

// TestController_WriteWithoutInvalidationPluginMarksTagsStale grounds
// P2's cache-visibility contract through the controller's direct
// invalidation fallback (spec.md §4.3).
func TestController_WriteWithoutInvalidationPluginMarksTagsStale(t *testing.T) {
	tr := func(context.Context, string, schemas.Method, schemas.Request) (schemas.Response, error) {
		return schemas.Response{Status: 200, Data: map[string]any{"ok": true}}, nil
	}

	ex, err := plugin.NewExecutor(nil)
	require.NoError(t, err)
	sm := statemanager.New()
	bus := eventbus.New()

	readKey, err := schemas.CreateQueryKey(schemas.RequestDescriptor{Path: "/posts", Method: schemas.MethodGet})
	require.NoError(t, err)
	sm.SetCache(readKey, statemanager.SetCacheOptions{Data: "x", HasData: true, Tags: []string{"posts"}, HasTags: true})

	var notified int
	bus.SubscribeInvalidate([]string{"posts"}, func([]string) { notified++ })

	c := New(Config{
		Path: "/posts", Method: schemas.MethodPost, OperationType: schemas.OperationWrite,
		Tags: []string{"posts"}, Executor: ex, StateManager: sm, EventBus: bus, Transport: tr,
	})
	_, err = c.Execute(context.Background(), schemas.RequestOptions{}, false)
	require.NoError(t, err)

	entry, ok := sm.GetCache(readKey)
	require.True(t, ok)
	require.True(t, entry.Stale)
	require.Equal(t, 1, notified)
}
