package kit

import "context"

// Endpoint is a transport-agnostic handler: HTTP handlers and MCP tools
// both decode into a request value and call one.
type Endpoint func(ctx context.Context, request any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
