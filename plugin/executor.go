package plugin

import (
	"fmt"

	"github.com/maximhq/datahook/errs"
	"github.com/maximhq/datahook/logger"
	"github.com/maximhq/datahook/schemas"
)

// Phase names a lifecycle entry point.
type Phase string

const (
	PhaseMount   Phase = "mount"
	PhaseUnmount Phase = "unmount"
)

// Executor holds a dependency-ordered, frozen plugin list and runs the
// middleware chain and lifecycle fan-out over it (spec.md §4.2).
type Executor struct {
	ordered []Plugin
	byName  map[string]Plugin
	logger  logger.Logger
}

// SetLogger installs the logger used to report hook-boundary failures
// (afterResponse and lifecycle hook errors) at Warn, mirroring the
// teacher's PluginPipeline.logger.Warn("error in PreLLMHook for plugin
// %s: %s", ...). A nil logger is ignored, leaving the previous one (a
// no-op by default) in place.
func (e *Executor) SetLogger(l logger.Logger) {
	if l == nil {
		return
	}
	e.logger = l
}

// NewExecutor topologically sorts plugins by Dependencies() and freezes
// the result. It fails if a declared dependency is not registered, or if
// the dependency graph has a cycle (spec.md §4.2 construction step 1;
// P6).
func NewExecutor(plugins []Plugin) (*Executor, error) {
	byName := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		byName[p.Name()] = p
	}
	for _, p := range plugins {
		for _, dep := range p.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, errs.PluginConfig(fmt.Sprintf("Plugin %s depends on %s which is not registered", p.Name(), dep))
			}
		}
	}

	ordered, err := topoSort(plugins, byName)
	if err != nil {
		return nil, err
	}

	return &Executor{ordered: ordered, byName: byName, logger: logger.NoOp{}}, nil
}

// topoSort runs Kahn's algorithm over the dependency graph, producing an
// order where every plugin appears after its dependencies. Ties (plugins
// with no relative ordering constraint) resolve in registration order so
// the result is stable and reviewable (spec.md §9: "ordering via
// dependencies, not priority").
func topoSort(plugins []Plugin, byName map[string]Plugin) ([]Plugin, error) {
	indegree := make(map[string]int, len(plugins))
	dependents := make(map[string][]string, len(plugins))
	order := make([]string, 0, len(plugins))
	for _, p := range plugins {
		order = append(order, p.Name())
		indegree[p.Name()] = len(p.Dependencies())
	}
	for _, p := range plugins {
		for _, dep := range p.Dependencies() {
			dependents[dep] = append(dependents[dep], p.Name())
		}
	}

	var queue []string
	for _, name := range order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	var resolved []Plugin
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		resolved = append(resolved, byName[name])
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(resolved) != len(plugins) {
		return nil, errs.PluginConfig("Circular dependency detected")
	}
	return resolved, nil
}

// forOperation filters the ordered plugin list to those participating
// in op, preserving order.
func (e *Executor) forOperation(op schemas.OperationType) []Plugin {
	var out []Plugin
	for _, p := range e.ordered {
		for _, o := range p.Operations() {
			if o == op {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// NewContext builds a Context wired with this executor's plugin
// registry, so Context.Plugin(name) can discover any registered plugin
// regardless of which ones participate in this operation (spec.md §4.2:
// "createContext(input) injects a plugins accessor").
func (e *Executor) NewContext(base Context) *Context {
	base.registry = e.byName
	return &base
}

// ExecuteMiddleware composes the plugins participating in
// ctx.OperationType into an onion around coreFetch and runs the chain,
// then runs AfterResponse hooks in dependency-resolved plugin order
// (spec.md §4.2).
func (e *Executor) ExecuteMiddleware(ctx *Context, coreFetch NextFunc) (schemas.Response, error) {
	participants := e.forOperation(ctx.OperationType)

	chain := coreFetch
	for i := len(participants) - 1; i >= 0; i-- {
		mw, ok := participants[i].(Middleware)
		if !ok {
			continue
		}
		next := chain
		chain = func(c *Context) (schemas.Response, error) { return mw.Middleware(c, next) }
	}

	resp, err := chain(ctx)
	if err != nil {
		// Middleware threw: unwinding halts, afterResponse MUST NOT run
		// (spec.md §4.2, §7.2).
		return schemas.Response{}, err
	}

	for _, p := range participants {
		ar, ok := p.(AfterResponder)
		if !ok {
			continue
		}
		next, err := ar.AfterResponse(ctx, resp)
		if err != nil {
			e.logger.Warn("error in AfterResponse for plugin %s: %v", p.Name(), err)
			return schemas.Response{}, err
		}
		resp = next
	}
	return resp, nil
}

// ExecuteLifecycle calls OnMount or OnUnmount on every participating
// plugin, sequentially in plugin order, stopping at the first error.
func (e *Executor) ExecuteLifecycle(phase Phase, ctx *Context) error {
	for _, p := range e.forOperation(ctx.OperationType) {
		lc, ok := p.(Lifecycle)
		if !ok {
			continue
		}
		var err error
		switch phase {
		case PhaseMount:
			err = lc.OnMount(ctx)
		case PhaseUnmount:
			err = lc.OnUnmount(ctx)
		}
		if err != nil {
			e.logger.Warn("error in %s lifecycle hook for plugin %s: %v", phase, p.Name(), err)
			return errs.LifecycleHook(p.Name(), err)
		}
	}
	return nil
}

// ExecuteUpdateLifecycle calls OnUpdate on every participating plugin,
// sequentially in plugin order.
func (e *Executor) ExecuteUpdateLifecycle(ctx, prev *Context) error {
	for _, p := range e.forOperation(ctx.OperationType) {
		lc, ok := p.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.OnUpdate(ctx, prev); err != nil {
			e.logger.Warn("error in OnUpdate lifecycle hook for plugin %s: %v", p.Name(), err)
			return errs.LifecycleHook(p.Name(), err)
		}
	}
	return nil
}

// Get returns the registered plugin by name, for callers assembling
// controllers that need direct references (e.g. the invalidation
// plugin looked up by the optimistic plugin).
func (e *Executor) Get(name string) (Plugin, bool) {
	p, ok := e.byName[name]
	return p, ok
}
