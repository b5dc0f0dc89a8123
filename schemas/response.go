package schemas

// Response is the shape returned by the injected transport function and
// threaded through the plugin middleware chain (spec.md §6): exactly one
// of Data/Err is set on a completed call, or Aborted is true.
type Response struct {
	Status  int
	Data    any
	Err     error
	Headers map[string]string
	Aborted bool
}

// RequestOptions is the per-call options blob a caller passes to an
// operation controller (query, params, body, headers, plugin options).
// Headers may be supplied as a flat map or resolved asynchronously by the
// caller before reaching the controller; by the time a Request reaches
// middleware it is always a flat map (spec.md §4.3's "headers resolution").
type RequestOptions struct {
	Headers       any
	Query         any
	Params        any
	Body          any
	PluginOptions map[string]any
}

// Request is the mutable request snapshot visible to middleware
// (spec.md §4.2's Context.request field).
type Request struct {
	Headers map[string]string
	Query   any
	Params  any
	Body    any
}
