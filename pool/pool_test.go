package pool

import (
	"sync"
	"testing"
)

// scratchFixture mirrors the shape of schemas.objectScratch, the pool's
// real caller: a reusable slice plus a reusable map, both cleared (not
// reallocated) before the object goes back to the pool.
type scratchFixture struct {
	keys     []string
	children map[string]int
}

func (s *scratchFixture) reset() {
	s.keys = s.keys[:0]
	for k := range s.children {
		delete(s.children, k)
	}
}

func newScratchPool(name string) *Pool[scratchFixture] {
	return New(name, func() *scratchFixture {
		return &scratchFixture{children: make(map[string]int)}
	})
}

func TestPool_GetReturnsUsableObject(t *testing.T) {
	p := newScratchPool("querykey-scratch-roundtrip")

	s := p.Get()
	if s == nil {
		t.Fatal("Get() returned nil")
	}
	s.keys = append(s.keys, "path", "method")
	s.children["path"] = 1
	s.reset()
	p.Put(s)

	s2 := p.Get()
	if s2 == nil {
		t.Fatal("second Get() returned nil")
	}
	if len(s2.keys) != 0 || len(s2.children) != 0 {
		t.Fatalf("pooled object must come back reset, got keys=%v children=%v", s2.keys, s2.children)
	}
	s2.reset()
	p.Put(s2)
}

func TestPool_PutNilIsNoop(t *testing.T) {
	p := newScratchPool("querykey-scratch-nil-put")
	p.Put(nil)
}

func TestPool_PrewarmSeedsWithoutPanicking(t *testing.T) {
	creates := 0
	p := New("querykey-scratch-prewarm", func() *scratchFixture {
		creates++
		return &scratchFixture{children: make(map[string]int)}
	})

	p.Prewarm(8)

	objs := make([]*scratchFixture, 8)
	for i := range objs {
		objs[i] = p.Get()
		if objs[i] == nil {
			t.Fatalf("Get() returned nil at index %d", i)
		}
	}
	for _, o := range objs {
		o.reset()
		p.Put(o)
	}
}

// TestPool_ConcurrentCanonicalization exercises the pool the way
// schemas.canonicalizeValue does: every goroutine repeatedly acquires a
// scratch object, fills it as if sorting one JSON object's keys, resets,
// and returns it, racing under -race.
func TestPool_ConcurrentCanonicalization(t *testing.T) {
	p := newScratchPool("querykey-scratch-concurrent")

	const goroutines = 50
	const iterations = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				s := p.Get()
				s.keys = append(s.keys, "a", "b", "c")
				s.children["a"] = g
				s.children["b"] = i
				s.reset()
				p.Put(s)
			}
		}(g)
	}
	wg.Wait()
}

func TestPool_AllStatsDoesNotPanic(t *testing.T) {
	_ = AllStats()
}

func BenchmarkPoolGetPut(b *testing.B) {
	p := newScratchPool("bench")
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			s := p.Get()
			s.reset()
			p.Put(s)
		}
	})
}
