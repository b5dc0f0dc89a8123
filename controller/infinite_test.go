package controller

import (
	"context"
	"testing"

	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/stretchr/testify/require"
)

func newInfiniteTestController(t *testing.T, maxPage int) *InfiniteController {
	t.Helper()
	ex, err := plugin.NewExecutor(nil)
	require.NoError(t, err)

	tr := func(_ context.Context, _ string, _ schemas.Method, req schemas.Request) (schemas.Response, error) {
		n := req.Params.(int)
		return schemas.Response{Status: 200, Data: map[string]any{"page": n}}, nil
	}

	nextFn := NextPageRequest(func(pages []Page) (any, bool) {
		if len(pages) == 0 {
			return 1, true
		}
		n := pages[len(pages)-1].Request.(int)
		if n >= maxPage {
			return nil, false
		}
		return n + 1, true
	})

	merger := Merger(func(pages []Page) any {
		out := make([]int, 0, len(pages))
		for _, p := range pages {
			m, ok := p.State.Data.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, m["page"].(int))
		}
		return out
	})

	return NewInfinite(InfiniteConfig{
		Path: "/feed", Method: schemas.MethodGet, Tags: []string{"feed"},
		Executor: ex, StateManager: statemanager.New(), EventBus: eventbus.New(),
		Transport: tr, NextPageRequest: nextFn, Merger: merger,
	})
}

func TestInfinite_FetchNextAccumulatesPages(t *testing.T) {
	c := newInfiniteTestController(t, 3)

	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	_, err = c.FetchNext(context.Background())
	require.NoError(t, err)

	state := c.GetState()
	require.Equal(t, []int{1, 2}, state.Data)
	require.True(t, state.CanFetchNext)
	require.Len(t, state.AllResponses, 2)
}

func TestInfinite_FetchNextStopsWhenExhausted(t *testing.T) {
	c := newInfiniteTestController(t, 1)

	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	resp, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	require.Nil(t, resp.Data, "no-op fetch must not dispatch a page")

	state := c.GetState()
	require.Equal(t, []int{1}, state.Data)
	require.False(t, state.CanFetchNext)
}

func TestInfinite_RefetchClearsPagesAndRestartsFromFirst(t *testing.T) {
	c := newInfiniteTestController(t, 3)
	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)
	_, err = c.FetchNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{1, 2}, c.GetState().Data)

	_, err = c.Refetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int{1}, c.GetState().Data, "refetch must drop prior pages and restart from the first")
}

func TestInfinite_MountRefetchesWhenAPageIsStale(t *testing.T) {
	c := newInfiniteTestController(t, 3)
	_, err := c.FetchNext(context.Background())
	require.NoError(t, err)

	td := c.loadTracker()
	require.Len(t, td.PageKeys, 1)
	c.cfg.StateManager.MarkStale([]string{"feed"})

	require.NoError(t, c.Mount())
	require.Equal(t, []int{1}, c.GetState().Data)

	require.NoError(t, c.Unmount())
}
