package controller

import (
	"context"

	"github.com/maximhq/datahook/errs"
	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/logger"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/queue"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/maximhq/datahook/transport"
)

// QueueConfig wires a queue dispatcher into the same plugin/state/event/
// transport stack the read/write controller uses.
type QueueConfig struct {
	Path    string
	Method  schemas.Method
	Headers any
	Tags    []string

	Executor     *plugin.Executor
	StateManager *statemanager.Manager
	EventBus     *eventbus.Bus
	Transport    transport.Func
	Logger       logger.Logger
}

// NewQueueDispatcher builds a queue.Dispatcher that runs each item's
// input through the operationQueue middleware chain exactly the way a
// write would, then commits and invalidates on success (spec.md §4.5:
// "dispatches via the same middleware chain as a write").
func NewQueueDispatcher(cfg QueueConfig) queue.Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.NoOp{}
	}
	cfg.Executor.SetLogger(cfg.Logger)
	return func(ctx context.Context, input any) (schemas.Response, error) {
		headers, err := resolveHeadersValue(ctx, cfg.Headers)
		if err != nil {
			return schemas.Response{}, err
		}
		key, err := schemas.CreateQueryKey(schemas.RequestDescriptor{Path: cfg.Path, Method: cfg.Method, Options: input})
		if err != nil {
			return schemas.Response{}, err
		}

		pc := plugin.Context{
			OperationType:    schemas.OperationQueue,
			Path:             cfg.Path,
			Method:           cfg.Method,
			QueryKey:         key,
			Tags:             append([]string(nil), cfg.Tags...),
			RequestTimestamp: schemas.NowMillis(),
			Request:          &schemas.Request{Headers: headers, Body: input},
			StateManager:     cfg.StateManager,
			EventBus:         cfg.EventBus,
			Temp:             map[string]any{},
			Metadata:         map[string]any{},
			PluginOptions:    map[string]any{},
			Ctx:              ctx,
		}
		ctxP := cfg.Executor.NewContext(pc)

		resp, err := cfg.Executor.ExecuteMiddleware(ctxP, func(pc *plugin.Context) (schemas.Response, error) {
			return dedupFetch(pc, cfg.StateManager, cfg.Transport)
		})
		if err != nil {
			if !errs.IsAborted(err) {
				cfg.Logger.Warn("queue dispatch middleware chain error for %s %s: %v", cfg.Method, cfg.Path, err)
			}
			return schemas.Response{}, err
		}

		if reachedTransport(ctxP) {
			commitCache(cfg.StateManager, key, cfg.Tags, resp)
		}
		if resp.Data != nil && resp.Err == nil {
			if _, ok := cfg.Executor.Get("invalidation"); !ok && len(cfg.Tags) > 0 {
				cfg.StateManager.MarkStale(cfg.Tags)
				cfg.EventBus.PublishInvalidate(cfg.Tags)
			}
		}
		return resp, nil
	}
}
