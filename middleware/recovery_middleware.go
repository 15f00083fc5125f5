package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"corelink/message"
)

// Recovery converts a panicking callable into a failed call, so one bad
// handler degrades to an RPC exception reply instead of ending the serve
// loop with the kernel still running.
func Recovery(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, service int32, args []message.Value) (result message.Value, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("rpc handler panicked",
						zap.Int32("service", service),
						zap.Any("panic", r))
					result, err = nil, fmt.Errorf("panic in RPC handler %d: %v", service, r)
				}
			}()
			return next(ctx, service, args)
		}
	}
}
