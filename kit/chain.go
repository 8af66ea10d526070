// Package kit holds small cross-cutting conventions shared by the
// domstate components: context propagation keys and the middleware chain
// used to compose the pre-validate -> act -> stabilize -> snapshot -> format
// pipeline in package action. Chain/Middleware/Endpoint here are the same
// left-to-right composition shape as connectivity/middleware.go's
// Chain/HandlerMiddleware, generalized from a []byte-payload Handler to an
// any-request Endpoint since action's pipeline stages pass a
// *pipelineState, not wire bytes.
package kit

import "context"

// Endpoint is a unit of work: take a request, return a response or error.
// action.Executor chains its pre-validate, act (the action function plus
// its stale-element retry), stabilize and compute-and-format stages as
// Middleware around a pass-through terminal Endpoint.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint to add behavior before/after the call.
type Middleware func(next Endpoint) Endpoint

// Chain composes middlewares so that the first one given is outermost:
// Chain(a, b, c)(endpoint) runs a_before, b_before, c_before, endpoint,
// c_after, b_after, a_after.
func Chain(mws ...Middleware) Middleware {
	return func(endpoint Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			endpoint = mws[i](endpoint)
		}
		return endpoint
	}
}
