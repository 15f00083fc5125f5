package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"corelink/message"
)

// Logging logs every serviced RPC with its duration and outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, service int32, args []message.Value) (message.Value, error) {
			start := time.Now()
			result, err := next(ctx, service, args)
			fields := []zap.Field{
				zap.Int32("service", service),
				zap.Int("args", len(args)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("rpc service failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("rpc service", append(fields, zap.Stringer("result", result))...)
			}
			return result, err
		}
	}
}
