// Package plugin implements the plugin executor from spec.md §4.2: a
// dependency-ordered, onion-composed middleware chain plus lifecycle
// fan-out.
//
// Grounded on core/bifrost.go's PluginPipeline (pre-hooks in order,
// post-hooks in reverse, short-circuit bookkeeping via
// executedPreHooks), generalized from a fixed PreHook/PostHook pair to
// genuine next()-style middleware because spec.md requires a middleware
// be able to "return a response without calling next()" after observing
// what next() would have returned — a shape the teacher's paired hooks
// cannot express. The capability surface (Middleware, Lifecycle,
// AfterResponder, Exporter) follows the teacher's plain-interface style
// but splits it into several small optional interfaces, the idiomatic Go
// way to express "most of these hooks are optional" (as net/http does
// with Flusher/Hijacker on ResponseWriter) rather than one interface with
// nil-checked fields.
package plugin

import "github.com/maximhq/datahook/schemas"

// Plugin is the capability every registered plugin must implement.
// Optional behavior (middleware, lifecycle, afterResponse, exports) is
// expressed via the additional interfaces below and discovered with a
// type assertion, so a plugin need only implement what it uses.
type Plugin interface {
	// Name uniquely identifies the plugin within an executor.
	Name() string
	// Operations lists which operation types this plugin participates
	// in (spec.md §4.2: "a subset of {read, write, infiniteRead,
	// queue}").
	Operations() []schemas.OperationType
	// Dependencies lists plugin names that must run, and therefore be
	// registered, before this one.
	Dependencies() []string
}

// NextFunc is the continuation passed to a middleware's Middleware
// method. Calling it runs the remaining chain (or the core transport
// fetch for the innermost plugin).
type NextFunc func(ctx *Context) (schemas.Response, error)

// Middleware lets a plugin wrap the request/response chain.
type Middleware interface {
	Middleware(ctx *Context, next NextFunc) (schemas.Response, error)
}

// Lifecycle lets a plugin react to controller mount/unmount/update.
type Lifecycle interface {
	OnMount(ctx *Context) error
	OnUnmount(ctx *Context) error
	OnUpdate(ctx *Context, prev *Context) error
}

// AfterResponder lets a plugin observe (and optionally replace) the
// final response after the middleware chain has unwound.
type AfterResponder interface {
	AfterResponse(ctx *Context, resp schemas.Response) (schemas.Response, error)
}

// Exporter lets a plugin expose a capability object to other plugins via
// Context.Plugin(name).
type Exporter interface {
	Exports(ctx *Context) any
}

// Base is an embeddable helper that satisfies the mandatory Plugin
// methods with sane zero-dependency defaults, so a concrete plugin only
// needs to set Name/Ops/Deps and implement whichever optional interface
// it needs. Grounded on the same "small embeddable default" idiom the
// teacher uses for its provider base configs.
type Base struct {
	PluginName string
	Ops        []schemas.OperationType
	PluginDeps []string
}

func (b Base) Name() string { return b.PluginName }
func (b Base) Operations() []schemas.OperationType { return b.Ops }
func (b Base) Dependencies() []string { return b.PluginDeps }
