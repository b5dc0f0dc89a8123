package controller

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/maximhq/datahook/errs"
	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/logger"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/maximhq/datahook/transport"
)

// Direction names which end of the page list a fetch is extending.
type Direction string

const (
	DirectionNone Direction = ""
	DirectionNext Direction = "next"
	DirectionPrev Direction = "prev"
)

// Page pairs one page's request options with its settled state, the
// unit the Merger and page-request functions are fed (spec.md §4.4:
// "the merger is fed allResponses in [reading] order").
type Page struct {
	Request any
	State   schemas.OperationState
}

// NextPageRequest computes the request options for the page after
// pages, or ok=false if there is no next page (spec.md §4.4's
// user-supplied "nextPageRequest").
type NextPageRequest func(pages []Page) (req any, ok bool)

// PrevPageRequest is the symmetric counterpart feeding fetchPrev.
type PrevPageRequest func(pages []Page) (req any, ok bool)

// Merger combines settled pages into the single value the caller reads
// via InfiniteController.GetState.
type Merger func(pages []Page) any

// InfiniteConfig wires one infinite-read controller instance (spec.md
// §4.4).
type InfiniteConfig struct {
	Path        string
	Method      schemas.Method
	BaseOptions any
	Headers     any
	Tags        []string

	Executor     *plugin.Executor
	StateManager *statemanager.Manager
	EventBus     *eventbus.Bus
	Transport    transport.Func
	Logger       logger.Logger

	NextPageRequest NextPageRequest
	PrevPageRequest PrevPageRequest
	Merger          Merger
}

// trackerData is the value stored as a tracker cache entry's state.Data
// (spec.md §3's Infinite Tracker: "{ pageKeys: ordered sequence,
// pageRequests: mapping }"). Kept as a plain Go value rather than a
// JSON-shaped map since the tracker never leaves this process.
type trackerData struct {
	PageKeys     []string
	PageRequests map[string]any
}

// InfiniteState is the computed, read-only view InfiniteController.GetState
// returns (spec.md §4.4's getState).
type InfiniteState struct {
	Data          any
	CanFetchNext  bool
	CanFetchPrev  bool
	AllResponses  []any
	AllRequests   []any
	Err           error
}

// InfiniteController is the many-page composite controller from spec.md
// §4.4: one tracker entry plus one independently cacheable entry per
// page.
type InfiniteController struct {
	cfg InfiniteConfig

	mu         sync.Mutex
	instanceID string
	mounted    bool
	direction  Direction
	cancels    map[string]context.CancelFunc
	pageSubs   []statemanager.Unsubscribe
	refetchSub eventbus.Unsubscribe
}

// NewInfinite constructs an infinite-read controller.
func NewInfinite(cfg InfiniteConfig) *InfiniteController {
	if cfg.Logger == nil {
		cfg.Logger = logger.NoOp{}
	}
	cfg.Executor.SetLogger(cfg.Logger)
	return &InfiniteController{
		cfg:        cfg,
		instanceID: uuid.New().String(),
		cancels:    map[string]context.CancelFunc{},
	}
}

func (c *InfiniteController) trackerKey() string {
	key, _ := schemas.CreateQueryKey(schemas.RequestDescriptor{
		Path: c.cfg.Path, Method: c.cfg.Method,
		Options: map[string]any{"type": "infinite-tracker", "baseOptions": c.cfg.BaseOptions},
	})
	return key
}

func (c *InfiniteController) pageKey(pageRequest any) string {
	key, _ := schemas.CreateQueryKey(schemas.RequestDescriptor{
		Path: c.cfg.Path, Method: c.cfg.Method,
		Options: map[string]any{"baseOptions": c.cfg.BaseOptions, "pageRequest": pageRequest},
	})
	return key
}

func (c *InfiniteController) loadTracker() trackerData {
	entry, ok := c.cfg.StateManager.GetCache(c.trackerKey())
	if !ok {
		return trackerData{PageRequests: map[string]any{}}
	}
	td, ok := entry.State.Data.(trackerData)
	if !ok {
		return trackerData{PageRequests: map[string]any{}}
	}
	return td
}

func (c *InfiniteController) saveTracker(td trackerData) {
	c.cfg.StateManager.SetCache(c.trackerKey(), statemanager.SetCacheOptions{
		Data: td, HasData: true,
		Timestamp: schemas.NowMillis(), HasTimestamp: true,
		Tags: c.cfg.Tags, HasTags: true,
	})
}

func (c *InfiniteController) loadPages(td trackerData) []Page {
	pages := make([]Page, 0, len(td.PageKeys))
	for _, k := range td.PageKeys {
		entry, ok := c.cfg.StateManager.GetCache(k)
		if !ok {
			continue
		}
		pages = append(pages, Page{Request: td.PageRequests[k], State: entry.State})
	}
	return pages
}

func (c *InfiniteController) resolveHeaders(ctx context.Context) (map[string]string, error) {
	return resolveHeadersValue(ctx, c.cfg.Headers)
}

// fetchPage dispatches one page through the infiniteRead middleware
// chain and commits it to its own cache entry.
func (c *InfiniteController) fetchPage(ctx context.Context, pageRequest any, dir Direction) (schemas.Response, error) {
	key := c.pageKey(pageRequest)

	headers, err := c.resolveHeaders(ctx)
	if err != nil {
		return schemas.Response{}, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancels[key] = cancel
	c.direction = dir
	c.mu.Unlock()

	pc := plugin.Context{
		OperationType:    schemas.OperationInfiniteRead,
		Path:             c.cfg.Path,
		Method:           c.cfg.Method,
		QueryKey:         key,
		Tags:             append([]string(nil), c.cfg.Tags...),
		RequestTimestamp: schemas.NowMillis(),
		InstanceID:       c.instanceID,
		Request:          &schemas.Request{Headers: headers, Params: pageRequest},
		StateManager:     c.cfg.StateManager,
		EventBus:         c.cfg.EventBus,
		Temp:             map[string]any{},
		Metadata:         map[string]any{},
		PluginOptions:    map[string]any{},
		Ctx:              callCtx,
		Cancel:           cancel,
	}
	ctxP := c.cfg.Executor.NewContext(pc)

	resp, err := c.cfg.Executor.ExecuteMiddleware(ctxP, func(pc *plugin.Context) (schemas.Response, error) {
		return dedupFetch(pc, c.cfg.StateManager, c.cfg.Transport)
	})

	c.mu.Lock()
	delete(c.cancels, key)
	c.direction = DirectionNone
	c.mu.Unlock()

	if err != nil {
		if !errs.IsAborted(err) {
			c.cfg.Logger.Warn("infinite read middleware chain error for %s %s: %v", c.cfg.Method, c.cfg.Path, err)
		}
		return schemas.Response{}, err
	}
	if reachedTransport(ctxP) {
		commitCache(c.cfg.StateManager, key, c.cfg.Tags, resp)
	}
	return resp, nil
}

// FetchNext computes the next page request from the current page set
// and dispatches it, appending the resulting key on success (spec.md
// §4.4). An empty tracker performs the first page's fetch.
func (c *InfiniteController) FetchNext(ctx context.Context) (schemas.Response, error) {
	if c.cfg.NextPageRequest == nil {
		return schemas.Response{}, nil
	}
	td := c.loadTracker()
	pages := c.loadPages(td)

	pageRequest, ok := c.cfg.NextPageRequest(pages)
	if !ok {
		return schemas.Response{}, nil
	}

	key := c.pageKey(pageRequest)
	if c.pageInFlight(key) {
		return schemas.Response{}, nil
	}

	resp, err := c.fetchPage(ctx, pageRequest, DirectionNext)
	if err != nil {
		return resp, err
	}
	if resp.Data != nil && resp.Err == nil {
		c.appendPageKey(key, pageRequest)
		c.subscribeToPage(key)
	}
	return resp, nil
}

// FetchPrev is the symmetric counterpart, prepending the resulting key
// (spec.md §4.4). No-op if PrevPageRequest is not supplied.
func (c *InfiniteController) FetchPrev(ctx context.Context) (schemas.Response, error) {
	if c.cfg.PrevPageRequest == nil {
		return schemas.Response{}, nil
	}
	td := c.loadTracker()
	pages := c.loadPages(td)

	pageRequest, ok := c.cfg.PrevPageRequest(pages)
	if !ok {
		return schemas.Response{}, nil
	}

	key := c.pageKey(pageRequest)
	if c.pageInFlight(key) {
		return schemas.Response{}, nil
	}

	resp, err := c.fetchPage(ctx, pageRequest, DirectionPrev)
	if err != nil {
		return resp, err
	}
	if resp.Data != nil && resp.Err == nil {
		c.prependPageKey(key, pageRequest)
		c.subscribeToPage(key)
	}
	return resp, nil
}

func (c *InfiniteController) pageInFlight(key string) bool {
	_, inFlight := c.cfg.StateManager.GetPendingPromise(key)
	return inFlight
}

func (c *InfiniteController) appendPageKey(key string, pageRequest any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	td := c.loadTracker()
	td.PageKeys = append(td.PageKeys, key)
	if td.PageRequests == nil {
		td.PageRequests = map[string]any{}
	}
	td.PageRequests[key] = pageRequest
	c.saveTracker(td)
}

func (c *InfiniteController) prependPageKey(key string, pageRequest any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	td := c.loadTracker()
	td.PageKeys = append([]string{key}, td.PageKeys...)
	if td.PageRequests == nil {
		td.PageRequests = map[string]any{}
	}
	td.PageRequests[key] = pageRequest
	c.saveTracker(td)
}

// Refetch deletes every page entry and the tracker, then fetches the
// first page fresh (spec.md §4.4).
func (c *InfiniteController) Refetch(ctx context.Context) (schemas.Response, error) {
	td := c.loadTracker()

	c.mu.Lock()
	for _, sub := range c.pageSubs {
		sub()
	}
	c.pageSubs = nil
	c.mu.Unlock()

	for _, k := range td.PageKeys {
		c.cfg.StateManager.DeleteCache(k)
	}
	c.cfg.StateManager.DeleteCache(c.trackerKey())

	return c.FetchNext(ctx)
}

// Abort cancels whichever page fetch is currently in flight, if any.
func (c *InfiniteController) Abort() {
	c.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, cancel := range c.cancels {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// GetFetchingDirection reports which end of the page list, if any, is
// currently being extended (spec.md §4.4).
func (c *InfiniteController) GetFetchingDirection() Direction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.direction
}

// GetState computes the merged view over all settled pages (spec.md
// §4.4's getState): merged data, paging flags, and the most recent
// page error.
func (c *InfiniteController) GetState() InfiniteState {
	td := c.loadTracker()
	pages := c.loadPages(td)

	allResponses := make([]any, len(pages))
	allRequests := make([]any, len(pages))
	var lastErr error
	for i, p := range pages {
		allResponses[i] = p.State.Data
		allRequests[i] = p.Request
		if p.State.Err != nil {
			lastErr = p.State.Err
		}
	}

	var merged any
	if c.cfg.Merger != nil {
		merged = c.cfg.Merger(pages)
	}

	canNext := false
	if c.cfg.NextPageRequest != nil {
		_, canNext = c.cfg.NextPageRequest(pages)
	}
	canPrev := false
	if c.cfg.PrevPageRequest != nil {
		_, canPrev = c.cfg.PrevPageRequest(pages)
	}

	return InfiniteState{
		Data: merged, CanFetchNext: canNext, CanFetchPrev: canPrev,
		AllResponses: allResponses, AllRequests: allRequests, Err: lastErr,
	}
}

// Mount loads the tracker, subscribes to every known page key plus
// cross-page refetch events, and refetches immediately if any page is
// stale (spec.md §4.4).
func (c *InfiniteController) Mount() error {
	c.mu.Lock()
	c.mounted = true
	c.mu.Unlock()

	td := c.loadTracker()
	anyStale := false
	for _, k := range td.PageKeys {
		c.subscribeToPage(k)
		if entry, ok := c.cfg.StateManager.GetCache(k); ok && entry.Stale {
			anyStale = true
		}
	}

	trackerKey := c.trackerKey()
	pageKeySet := make(map[string]struct{}, len(td.PageKeys))
	for _, k := range td.PageKeys {
		pageKeySet[k] = struct{}{}
	}

	c.mu.Lock()
	c.refetchSub = c.cfg.EventBus.SubscribeRefetch(func(ev eventbus.RefetchEvent) bool {
		if ev.QueryKey == trackerKey {
			return true
		}
		_, ok := pageKeySet[ev.QueryKey]
		return ok
	}, func(eventbus.RefetchEvent) {
		_, _ = c.Refetch(context.Background())
	})
	c.mu.Unlock()

	if anyStale {
		_, err := c.Refetch(context.Background())
		return err
	}
	return nil
}

func (c *InfiniteController) subscribeToPage(key string) {
	sub := c.cfg.StateManager.SubscribeCache(key, func() {})
	c.mu.Lock()
	c.pageSubs = append(c.pageSubs, sub)
	c.mu.Unlock()
}

// Unmount removes every page subscription and the refetch listener
// (spec.md §4.4).
func (c *InfiniteController) Unmount() error {
	c.mu.Lock()
	c.mounted = false
	subs := c.pageSubs
	c.pageSubs = nil
	refetchSub := c.refetchSub
	c.refetchSub = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub()
	}
	if refetchSub != nil {
		refetchSub()
	}
	return nil
}

// InstanceID returns this controller's stable per-mount identity.
func (c *InfiniteController) InstanceID() string { return c.instanceID }
