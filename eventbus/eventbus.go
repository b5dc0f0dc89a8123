// Package eventbus implements the named-topic pub/sub bus from spec.md
// §2/§6: refetch/invalidate/refetchAll signals, plus arbitrary
// plugin-defined topics.
//
// Grounded on the teacher's concurrent-registry idiom used throughout
// core/bifrost.go (sync.Map-keyed registries of per-key subscriber
// state, e.g. requestQueues/waitGroups/providerMutexes) generalized from
// "one registry per concern" to "one registry of subscriber lists per
// topic."
package eventbus

import (
	"sync"
	"sync/atomic"
)

// RefetchReason is the "reason" field of a refetch event (spec.md §6).
type RefetchReason string

const (
	ReasonFocus      RefetchReason = "focus"
	ReasonReconnect  RefetchReason = "reconnect"
	ReasonInvalidate RefetchReason = "invalidate"
	ReasonManual     RefetchReason = "manual"
)

// Topic names for the built-in topics.
const (
	TopicRefetch    = "refetch"
	TopicInvalidate = "invalidate"
	TopicRefetchAll = "refetchAll"
)

// RefetchEvent is the payload of the "refetch" topic.
type RefetchEvent struct {
	QueryKey string
	Reason   RefetchReason
}

// Unsubscribe removes a subscription. Safe to call more than once.
type Unsubscribe func()

type subscriber struct {
	id int64
	fn func(payload any)
}

// Bus is a named-topic pub/sub bus with typed payloads left to the
// caller (publishers and subscribers agree out of band on the payload
// shape per topic, same as the built-in RefetchEvent / []string tags
// payloads spec.md §6 defines).
type Bus struct {
	mu      sync.RWMutex
	topics  map[string][]subscriber
	nextID  atomic.Int64
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{topics: make(map[string][]subscriber)}
}

// Subscribe registers fn against topic; it is invoked synchronously,
// from the goroutine calling Publish, for every event published after
// subscription (events published concurrently with Subscribe may or may
// not be observed, matching spec.md §5's "no re-entrancy guarantee
// across subscribers").
func (b *Bus) Subscribe(topic string, fn func(payload any)) Unsubscribe {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.topics[topic] = append(b.topics[topic], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.topics[topic]
			for i, s := range subs {
				if s.id == id {
					b.topics[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish fans payload out to every current subscriber of topic, in
// subscription order. Subscriber callbacks must not assume re-entrancy
// safety from other subscribers (spec.md §5).
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.topics[topic]))
	copy(subs, b.topics[topic])
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(payload)
	}
}

// PublishRefetch is a typed convenience wrapper for the "refetch" topic.
func (b *Bus) PublishRefetch(queryKey string, reason RefetchReason) {
	b.Publish(TopicRefetch, RefetchEvent{QueryKey: queryKey, Reason: reason})
}

// SubscribeRefetch subscribes to "refetch" events matching a predicate
// (e.g. "queryKey equals mine"), unwrapping the payload for the caller.
func (b *Bus) SubscribeRefetch(match func(RefetchEvent) bool, fn func(RefetchEvent)) Unsubscribe {
	return b.Subscribe(TopicRefetch, func(payload any) {
		ev, ok := payload.(RefetchEvent)
		if !ok {
			return
		}
		if match == nil || match(ev) {
			fn(ev)
		}
	})
}

// PublishInvalidate is a typed convenience wrapper for the "invalidate"
// topic, whose payload is the tag set being invalidated.
func (b *Bus) PublishInvalidate(tags []string) {
	b.Publish(TopicInvalidate, tags)
}

// SubscribeInvalidate subscribes to "invalidate" events whose tag set
// intersects watchTags.
func (b *Bus) SubscribeInvalidate(watchTags []string, fn func(tags []string)) Unsubscribe {
	watch := make(map[string]struct{}, len(watchTags))
	for _, t := range watchTags {
		watch[t] = struct{}{}
	}
	return b.Subscribe(TopicInvalidate, func(payload any) {
		tags, ok := payload.([]string)
		if !ok {
			return
		}
		for _, t := range tags {
			if _, hit := watch[t]; hit {
				fn(tags)
				return
			}
		}
	})
}
