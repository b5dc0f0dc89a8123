package queue

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/maximhq/datahook/schemas"
)

// Status is the lifecycle state of a queue Item (spec.md §4.5).
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusAborted Status = "aborted"
)

func (s Status) settled() bool {
	return s == StatusSuccess || s == StatusError || s == StatusAborted
}

func (s Status) failed() bool {
	return s == StatusError || s == StatusAborted
}

// Item is one entry in the queue.
type Item struct {
	ID       string
	Status   Status
	Input    any
	Response schemas.Response
	Err      error

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Wait blocks until the item settles, then returns its final response.
func (it *Item) Wait() (schemas.Response, error) {
	<-it.done
	return it.Response, it.Err
}

// Stats is the snapshot returned by Controller.GetStats (spec.md §4.5).
type Stats struct {
	Pending    int
	Running    int
	Settled    int
	Success    int
	Failed     int
	Total      int
	Percentage int
}

// Dispatcher runs one queue item's input through the write middleware
// chain (the queue controller dispatches "via the same middleware chain
// as a write", spec.md §4.5).
type Dispatcher func(ctx context.Context, input any) (schemas.Response, error)

// Controller is the queue controller from spec.md §4.5, backed by a
// Semaphore of the configured concurrency.
type Controller struct {
	mu        sync.Mutex
	items     []*Item
	byID      map[string]*Item
	sem       *Semaphore
	dispatch  Dispatcher
	started   bool
	nextSubID int64
	subs      map[int64]func()
}

// NewController creates a queue controller. If autoStart is false,
// triggered items enqueue but do not dispatch until Start() is called
// (spec.md §4.5).
func NewController(concurrency int, autoStart bool, dispatch Dispatcher) *Controller {
	return &Controller{
		sem:      NewSemaphore(concurrency),
		dispatch: dispatch,
		started:  autoStart,
		byID:     make(map[string]*Item),
		subs:     make(map[int64]func()),
	}
}

// Start begins dispatching pending items and marks the queue started.
func (c *Controller) Start() {
	c.mu.Lock()
	already := c.started
	c.started = true
	pending := c.pendingItemsLocked()
	c.mu.Unlock()
	if already {
		return
	}
	for _, it := range pending {
		go c.run(it)
	}
}

// IsStarted reports whether the queue is dispatching.
func (c *Controller) IsStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *Controller) pendingItemsLocked() []*Item {
	var out []*Item
	for _, it := range c.items {
		if it.Status == StatusPending {
			out = append(out, it)
		}
	}
	return out
}

// Trigger enqueues input under id (generating "q-<uuid>" if id is
// empty) and dispatches it once a slot is free, returning immediately
// with the Item the caller can Wait() on.
func (c *Controller) Trigger(id string, input any) *Item {
	if id == "" {
		id = "q-" + uuid.New().String()
	}
	item := &Item{ID: id, Status: StatusPending, Input: input, done: make(chan struct{})}

	c.mu.Lock()
	c.items = append(c.items, item)
	c.byID[id] = item
	shouldRun := c.started
	c.mu.Unlock()

	c.notify()
	if shouldRun {
		go c.run(item)
	}
	return item
}

func (c *Controller) run(item *Item) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if item.Status != StatusPending {
		c.mu.Unlock()
		return
	}
	item.cancel = cancel
	c.mu.Unlock()

	if !c.sem.Acquire() {
		c.settle(item, schemas.Response{Aborted: true}, nil, StatusAborted)
		return
	}
	defer c.sem.Release()

	c.mu.Lock()
	if item.Status != StatusPending {
		c.mu.Unlock()
		return
	}
	item.Status = StatusRunning
	c.mu.Unlock()
	c.notify()

	resp, err := c.dispatch(ctx, item.Input)

	status := StatusSuccess
	switch {
	case ctx.Err() != nil || resp.Aborted:
		status = StatusAborted
		resp.Aborted = true
	case err != nil:
		status = StatusError
	}
	c.settle(item, resp, err, status)
}

func (c *Controller) settle(item *Item, resp schemas.Response, err error, status Status) {
	settled := false
	item.once.Do(func() {
		c.mu.Lock()
		item.Response = resp
		item.Err = err
		item.Status = status
		c.mu.Unlock()
		close(item.done)
		settled = true
	})
	if settled {
		c.notify()
	}
}

// GetQueue returns a snapshot of items in insertion order.
func (c *Controller) GetQueue() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Item, len(c.items))
	for i, it := range c.items {
		out[i] = *it
	}
	return out
}

// GetStats computes queue statistics per spec.md §4.5.
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Stats
	for _, it := range c.items {
		s.Total++
		switch {
		case it.Status == StatusPending:
			s.Pending++
		case it.Status == StatusRunning:
			s.Running++
		case it.Status.settled():
			s.Settled++
			if it.Status.failed() {
				s.Failed++
			} else {
				s.Success++
			}
		}
	}
	if s.Total > 0 {
		s.Percentage = (100 * s.Settled) / s.Total
	}
	return s
}

// Subscribe registers cb to be notified on every queue mutation.
func (c *Controller) Subscribe(cb func()) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subs[id] = cb
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	cbs := make([]func(), 0, len(c.subs))
	for _, cb := range c.subs {
		cbs = append(cbs, cb)
	}
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// Abort aborts one item by id, or every non-settled item if id is
// empty (spec.md §4.5).
func (c *Controller) Abort(id string) {
	if id != "" {
		c.mu.Lock()
		item, ok := c.byID[id]
		c.mu.Unlock()
		if ok {
			c.abortItem(item)
		}
		return
	}
	c.mu.Lock()
	items := append([]*Item(nil), c.items...)
	c.mu.Unlock()
	for _, it := range items {
		if !it.Status.settled() {
			c.abortItem(it)
		}
	}
}

func (c *Controller) abortItem(item *Item) {
	c.mu.Lock()
	status := item.Status
	cancel := item.cancel
	c.mu.Unlock()

	switch status {
	case StatusPending:
		c.settle(item, schemas.Response{Aborted: true}, nil, StatusAborted)
	case StatusRunning:
		if cancel != nil {
			cancel()
		}
	}
}

// Retry re-enqueues a settled-in-failure item by id, or every failed
// item if id is empty, preserving the original input.
func (c *Controller) Retry(id string) {
	c.mu.Lock()
	var targets []*Item
	if id != "" {
		if it, ok := c.byID[id]; ok && it.Status.failed() {
			targets = append(targets, it)
		}
	} else {
		for _, it := range c.items {
			if it.Status.failed() {
				targets = append(targets, it)
			}
		}
	}
	c.mu.Unlock()

	for _, it := range targets {
		c.mu.Lock()
		fresh := &Item{ID: it.ID, Status: StatusPending, Input: it.Input, done: make(chan struct{})}
		for i, existing := range c.items {
			if existing == it {
				c.items[i] = fresh
				break
			}
		}
		c.byID[it.ID] = fresh
		shouldRun := c.started
		c.mu.Unlock()

		c.notify()
		if shouldRun {
			go c.run(fresh)
		}
	}
}

// Remove deletes one item by id (aborting it first if active), or
// every settled item if id is empty.
func (c *Controller) Remove(id string) {
	if id != "" {
		c.mu.Lock()
		item, ok := c.byID[id]
		c.mu.Unlock()
		if !ok {
			return
		}
		if !item.Status.settled() {
			c.abortItem(item)
		}
		c.mu.Lock()
		delete(c.byID, id)
		for i, it := range c.items {
			if it == item {
				c.items = append(c.items[:i:i], c.items[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
		c.notify()
		return
	}
	c.RemoveSettled()
}

// RemoveSettled deletes every settled item, keeping pending/running
// items in place.
func (c *Controller) RemoveSettled() {
	c.mu.Lock()
	kept := c.items[:0:0]
	for _, it := range c.items {
		if it.Status.settled() {
			delete(c.byID, it.ID)
			continue
		}
		kept = append(kept, it)
	}
	c.items = kept
	c.mu.Unlock()
	c.notify()
}

// Clear aborts everything, empties the queue, and resets the semaphore.
func (c *Controller) Clear() {
	c.mu.Lock()
	items := append([]*Item(nil), c.items...)
	c.mu.Unlock()
	for _, it := range items {
		if !it.Status.settled() {
			c.abortItem(it)
		}
	}
	c.sem.Reset()

	c.mu.Lock()
	c.items = nil
	c.byID = make(map[string]*Item)
	c.mu.Unlock()
	c.notify()
}

// SetConcurrency reconfigures the underlying semaphore.
func (c *Controller) SetConcurrency(n int) {
	c.sem.SetConcurrency(n)
}
