package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	b := New()
	var got []RefetchEvent
	unsub := b.SubscribeRefetch(nil, func(ev RefetchEvent) {
		got = append(got, ev)
	})

	b.PublishRefetch("k1", ReasonFocus)
	require.Len(t, got, 1)
	require.Equal(t, "k1", got[0].QueryKey)

	unsub()
	b.PublishRefetch("k2", ReasonManual)
	require.Len(t, got, 1, "no notification after unsubscribe")
}

func TestBus_UnsubscribeIdempotent(t *testing.T) {
	b := New()
	unsub := b.Subscribe("t", func(any) {})
	unsub()
	require.NotPanics(t, func() { unsub() })
}

func TestBus_InvalidateTagIntersection(t *testing.T) {
	b := New()
	var hits int
	b.SubscribeInvalidate([]string{"posts"}, func([]string) { hits++ })

	b.PublishInvalidate([]string{"comments"})
	require.Equal(t, 0, hits)

	b.PublishInvalidate([]string{"posts", "comments"})
	require.Equal(t, 1, hits)
}
