package decorators

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"graphboard/pkg/observability"
)

// SlowCallThreshold is the duration above which a store call is logged as
// slow.
const SlowCallThreshold = time.Second

// Instrument times every store call, records it on metrics (when not nil),
// opens a span for it and logs it at debug level, or as a warning when slow
// or failed.
func Instrument(metrics *observability.Collector, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")
	tracer := observability.Tracer("graphboard/store")

	return func(ctx context.Context, kind, op string, next func(context.Context) error) error {
		ctx, span := tracer.Start(ctx, "store."+kind+"."+op,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("store.kind", kind),
				attribute.String("store.operation", op),
			))

		start := time.Now()
		err := next(ctx)
		duration := time.Since(start)

		observability.EndSpan(span, err)
		if metrics != nil {
			metrics.RecordStoreOperation(kind, op, err, duration)
		}

		fields := []zap.Field{
			zap.String("kind", kind),
			zap.String("operation", op),
			zap.Duration("duration", duration),
		}
		switch {
		case err != nil && isBackendFailure(err):
			logger.Warn("Store call failed", append(fields, zap.Error(err))...)
		case duration > SlowCallThreshold:
			logger.Warn("Slow store call", fields...)
		default:
			logger.Debug("Store call", append(fields, zap.Bool("ok", err == nil))...)
		}
		return err
	}
}
