// Package transport defines the injectable transport boundary from
// spec.md §6: "any specific wire transport beyond a function that takes
// a request and returns a response" is deliberately out of the core's
// scope. Concrete implementations (fasthttpt being the default one
// shipped here) live in subpackages so core packages never import an
// HTTP client directly.
package transport

import (
	"context"

	"github.com/maximhq/datahook/schemas"
)

// Func is the transport boundary every controller dispatches through.
// Exactly one of Response.Data / Response.Err is set on a non-aborted
// return; ctx cancellation is how callers request abort (spec.md §5).
type Func func(ctx context.Context, path string, method schemas.Method, req schemas.Request) (schemas.Response, error)
