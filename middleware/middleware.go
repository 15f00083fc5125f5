// Package middleware provides a composable chain around host-side RPC
// dispatch: each device-initiated call flows through the chain before it
// reaches the registered callable.
package middleware

import (
	"context"

	"corelink/message"
)

// HandlerFunc services one device-initiated RPC: the service index and the
// decoded positional arguments in, one RPC value (or a failure) out.
type HandlerFunc func(ctx context.Context, service int32, args []message.Value) (message.Value, error)

// Middleware wraps a HandlerFunc with extra behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Chain(A, B, C)(h) executes
// A.before → B.before → C.before → h → C.after → B.after → A.after.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
