package middleware

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"corelink/message"
)

// ErrRateLimited is returned to the dispatcher when the token bucket is
// empty; the device observes it as a normal RPC exception reply.
var ErrRateLimited = errors.New("rpc rate limit exceeded")

// RateLimit bounds how fast device-initiated RPCs are serviced, using a
// token bucket of the given rate and burst.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, service int32, args []message.Value) (message.Value, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next(ctx, service, args)
		}
	}
}
