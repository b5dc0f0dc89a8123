// Package controller implements the operation controller family from
// spec.md §4.3/§4.4/§4.5: read, write, infinite read, and queue. Each
// wraps a plugin.Executor, a statemanager.Manager, an eventbus.Bus, and
// an injected transport.Func the way the teacher's core package wraps a
// ProviderRegistry and a PluginPipeline around the same per-request
// dispatch shape (core/bifrost.go's ChatCompletionRequest flow: resolve
// config, run pre-hooks, call the provider, run post-hooks, commit).
package controller

import (
	"context"
	"fmt"
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

// HeadersFunc resolves headers asynchronously (spec.md §4.3: "headers
// may be a value or an async function").
type HeadersFunc func(ctx context.Context) (map[string]string, error)

// Config wires one controller instance.
type Config struct {
	Path          string
	Method        schemas.Method
	OperationType schemas.OperationType // OperationRead or OperationWrite
	Headers       any                   // nil, map[string]string, or HeadersFunc
	Tags          []string
	Executor      *plugin.Executor
	StateManager  *statemanager.Manager
	EventBus      *eventbus.Bus
	Transport     transport.Func
	// Logger receives hook-boundary and dispatch errors at Warn. Defaults
	// to a no-op logger if nil, mirroring the teacher's "default logger
	// is used if not provided" BifrostConfig.Logger convention.
	Logger logger.Logger
}

// future is the in-flight value stored in the pending-promise registry
// for request deduplication (spec.md §4.3, §9).
type future struct {
	done chan struct{}
	resp schemas.Response
	err  error
}

// Controller is the read/write operation controller (spec.md §4.3).
// Write differs only in OperationType: the cache plugin never
// participates in the write operation set, so a write Controller
// naturally never short-circuits on a cache hit.
type Controller struct {
	cfg Config

	mu               sync.Mutex
	cancel           context.CancelFunc
	currentTimestamp int64
	mounted          bool
	pluginOptions    map[string]any
	metadata         map[string]any
	instanceID       string
}

// New constructs a controller. Each instance gets a fresh instanceId,
// used by plugins like initialData to key per-mount state.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logger.NoOp{}
	}
	cfg.Executor.SetLogger(cfg.Logger)
	return &Controller{
		cfg:           cfg,
		pluginOptions: map[string]any{},
		metadata:      map[string]any{},
		instanceID:    uuid.New().String(),
	}
}

func (c *Controller) resolveHeaders(ctx context.Context) (map[string]string, error) {
	return resolveHeadersValue(ctx, c.cfg.Headers)
}

// resolveHeadersValue is shared by every controller family member: headers
// may be a static map or an async function resolved against the call's
// context (spec.md §4.3: "headers may be a value or an async function").
func resolveHeadersValue(ctx context.Context, h any) (map[string]string, error) {
	switch v := h.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case HeadersFunc:
		return v(ctx)
	default:
		return nil, fmt.Errorf("controller: unsupported headers value of type %T", v)
	}
}

func (c *Controller) snapshotMaps() (map[string]any, map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := make(map[string]any, len(c.pluginOptions))
	for k, v := range c.pluginOptions {
		opts[k] = v
	}
	meta := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	return opts, meta
}

// GetContext returns a fresh plugin.Context snapshot without executing
// anything, used by callers driving update(prev) bookkeeping (spec.md
// §4.3).
func (c *Controller) GetContext() *plugin.Context {
	key, _ := schemas.CreateQueryKey(schemas.RequestDescriptor{Path: c.cfg.Path, Method: c.cfg.Method})
	opts, meta := c.snapshotMaps()
	c.mu.Lock()
	ts := c.currentTimestamp
	c.mu.Unlock()
	pc := plugin.Context{
		OperationType:    c.cfg.OperationType,
		Path:             c.cfg.Path,
		Method:           c.cfg.Method,
		QueryKey:         key,
		Tags:             append([]string(nil), c.cfg.Tags...),
		RequestTimestamp: ts,
		InstanceID:       c.instanceID,
		StateManager:     c.cfg.StateManager,
		EventBus:         c.cfg.EventBus,
		Temp:             map[string]any{},
		Metadata:         meta,
		PluginOptions:    opts,
	}
	return c.cfg.Executor.NewContext(pc)
}

// Execute resolves headers, builds the call context, and runs the
// middleware chain. force sets forceRefetch before entering the chain
// (spec.md §4.3).
func (c *Controller) Execute(ctx context.Context, opts schemas.RequestOptions, force bool) (schemas.Response, error) {
	headers, err := c.resolveHeaders(ctx)
	if err != nil {
		return schemas.Response{}, err
	}
	if opts.Headers != nil {
		callHeaders, err := resolveHeadersValue(ctx, opts.Headers)
		if err != nil {
			return schemas.Response{}, err
		}
		merged := make(map[string]string, len(headers)+len(callHeaders))
		for k, v := range headers {
			merged[k] = v
		}
		for k, v := range callHeaders {
			merged[k] = v
		}
		headers = merged
	}

	key, err := schemas.CreateQueryKey(schemas.RequestDescriptor{Path: c.cfg.Path, Method: c.cfg.Method, Options: opts})
	if err != nil {
		return schemas.Response{}, err
	}

	callCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.currentTimestamp = schemas.NowMillis()
	ts := c.currentTimestamp
	c.mu.Unlock()

	pluginOpts, meta := c.snapshotMaps()
	if opts.PluginOptions != nil {
		for k, v := range opts.PluginOptions {
			pluginOpts[k] = v
		}
	}

	pc := plugin.Context{
		OperationType:    c.cfg.OperationType,
		Path:             c.cfg.Path,
		Method:           c.cfg.Method,
		QueryKey:         key,
		Tags:             append([]string(nil), c.cfg.Tags...),
		RequestTimestamp: ts,
		InstanceID:       c.instanceID,
		Request: &schemas.Request{
			Headers: headers,
			Query:   opts.Query,
			Params:  opts.Params,
			Body:    opts.Body,
		},
		StateManager:  c.cfg.StateManager,
		EventBus:      c.cfg.EventBus,
		Temp:          map[string]any{},
		Metadata:      meta,
		PluginOptions: pluginOpts,
		ForceRefetch:  force,
		Ctx:           callCtx,
		Cancel:        cancel,
	}
	ctxP := c.cfg.Executor.NewContext(pc)

	resp, err := c.cfg.Executor.ExecuteMiddleware(ctxP, c.coreFetch)
	if err != nil {
		if !errs.IsAborted(err) {
			c.cfg.Logger.Warn("middleware chain error for %s %s: %v", c.cfg.Method, c.cfg.Path, err)
		}
		return schemas.Response{}, err
	}

	// A plugin (e.g. cache) may have short-circuited before coreFetch ever
	// ran; re-committing its response here would stamp a fresh Timestamp
	// over data that was never actually refetched, defeating staleTime.
	if reachedTransport(ctxP) {
		commitCache(c.cfg.StateManager, key, c.cfg.Tags, resp)
	}

	if c.cfg.OperationType == schemas.OperationWrite && resp.Data != nil && resp.Err == nil {
		c.afterWriteSuccess(key)
	}

	return resp, nil
}

// afterWriteSuccess runs the default invalidation behavior when no
// invalidation plugin participates in the write chain (spec.md §4.3:
// "via the invalidation plugin if present, or direct markStale +
// refetch emit").
func (c *Controller) afterWriteSuccess(key string) {
	if _, ok := c.cfg.Executor.Get("invalidation"); ok {
		return
	}
	if len(c.cfg.Tags) == 0 {
		return
	}
	c.cfg.StateManager.MarkStale(c.cfg.Tags)
	c.cfg.EventBus.PublishInvalidate(c.cfg.Tags)
}

// coreFetch is the innermost link of the middleware onion: it
// deduplicates concurrent callers onto a single in-flight future before
// calling the injected transport (spec.md §4.3, §9).
func (c *Controller) coreFetch(pc *plugin.Context) (schemas.Response, error) {
	return dedupFetch(pc, c.cfg.StateManager, c.cfg.Transport)
}

// fetchedTransportKey marks ctx.Temp when dedupFetch actually reached the
// transport (directly, or by waiting on another caller's in-flight call)
// for this context. Callers use it to decide whether a settled response
// is fresh enough to commit, as opposed to one a participating plugin
// (e.g. cache) produced by short-circuiting before next() ever ran.
const fetchedTransportKey = "__fetchedTransport"

// dedupFetch is the request-deduplication core shared by every
// controller family member (read/write, infinite read, queue): the
// first caller for a given query key dispatches the transport call and
// stores the pending future; concurrent callers for the same key block
// on it instead of dispatching again (spec.md §4.3, §9).
func dedupFetch(pc *plugin.Context, sm *statemanager.Manager, tr transport.Func) (schemas.Response, error) {
	val, created := sm.GetOrCreatePendingPromise(pc.QueryKey, func() any {
		return &future{done: make(chan struct{})}
	})
	f := val.(*future)
	if !created {
		<-f.done
		pc.Temp[fetchedTransportKey] = true
		return f.resp, f.err
	}

	resp, err := tr(pc.Ctx, pc.Path, pc.Method, *pc.Request)
	switch {
	case pc.Ctx.Err() != nil:
		resp.Aborted = true
		err = errs.Aborted()
	case err != nil:
		var statusCode *int
		if resp.Status != 0 {
			statusCode = &resp.Status
		}
		err = errs.Transport(statusCode, err.Error(), err)
	}
	f.resp, f.err = resp, err
	close(f.done)
	sm.SetPendingPromise(pc.QueryKey, nil)
	pc.Temp[fetchedTransportKey] = true
	return resp, err
}

// reachedTransport reports whether dedupFetch ran for ctx, as opposed to
// a participating plugin short-circuiting the chain before next() was
// ever called.
func reachedTransport(ctx *plugin.Context) bool {
	fetched, _ := ctx.Temp[fetchedTransportKey].(bool)
	return fetched
}

// commitCache writes a settled response into the state manager the way
// the dataflow in spec.md §2 describes: "unwind middleware in reverse →
// commit to State Manager → notify subscribers." Only a defined,
// error-free response is committed; plugins (e.g. the cache plugin) are
// responsible for recording errors without disturbing existing data.
func commitCache(sm *statemanager.Manager, key string, tags []string, resp schemas.Response) {
	if resp.Data == nil || resp.Err != nil {
		return
	}
	sm.SetCache(key, statemanager.SetCacheOptions{
		Data: resp.Data, HasData: true,
		Err: nil, HasErr: true,
		Timestamp: schemas.NowMillis(), HasTimestamp: true,
		Tags: tags, HasTags: true,
	})
}

// GetState returns the cached state for this controller's key, or a
// zero-value state if no entry exists yet.
func (c *Controller) GetState(opts schemas.RequestOptions) schemas.OperationState {
	key, _ := schemas.CreateQueryKey(schemas.RequestDescriptor{Path: c.cfg.Path, Method: c.cfg.Method, Options: opts})
	entry, ok := c.cfg.StateManager.GetCache(key)
	if !ok {
		return schemas.OperationState{}
	}
	return entry.State
}

// Subscribe forwards to the state manager for this controller's key.
func (c *Controller) Subscribe(opts schemas.RequestOptions, cb func()) statemanager.Unsubscribe {
	key, _ := schemas.CreateQueryKey(schemas.RequestDescriptor{Path: c.cfg.Path, Method: c.cfg.Method, Options: opts})
	return c.cfg.StateManager.SubscribeCache(key, cb)
}

// Abort cancels the in-flight transport call, if any, and clears the
// local signal reference; a subsequent Execute creates a fresh one.
func (c *Controller) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Refetch is equivalent to Execute with force=true (spec.md §4.3).
func (c *Controller) Refetch(ctx context.Context, opts schemas.RequestOptions) (schemas.Response, error) {
	return c.Execute(ctx, opts, true)
}

// Mount resets currentRequestTimestamp and runs mount lifecycle hooks.
func (c *Controller) Mount() error {
	c.mu.Lock()
	c.currentTimestamp = 0
	c.mounted = true
	c.mu.Unlock()
	return c.cfg.Executor.ExecuteLifecycle(plugin.PhaseMount, c.GetContext())
}

// Unmount runs unmount lifecycle hooks.
func (c *Controller) Unmount() error {
	c.mu.Lock()
	c.mounted = false
	c.mu.Unlock()
	return c.cfg.Executor.ExecuteLifecycle(plugin.PhaseUnmount, c.GetContext())
}

// Update runs OnUpdate lifecycle hooks against prev.
func (c *Controller) Update(prev *plugin.Context) error {
	return c.cfg.Executor.ExecuteUpdateLifecycle(c.GetContext(), prev)
}

// SetPluginOptions replaces the per-controller plugin options blob used
// on every subsequent Execute.
func (c *Controller) SetPluginOptions(o map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pluginOptions = o
}

// SetMetadata stamps a single metadata key, merged into every subsequent
// context's Metadata map.
func (c *Controller) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// InstanceID returns this controller's stable per-mount identity.
func (c *Controller) InstanceID() string { return c.instanceID }
