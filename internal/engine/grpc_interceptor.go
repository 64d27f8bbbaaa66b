package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// traceMetadataKey: в gRPC заголовки в нижнем регистре
const traceMetadataKey = "x-trace-id"

// UnaryTraceInterceptor прокидывает Trace-ID из метаданных (или создает новый)
// и пишет строку лога на каждый вызов.
func UnaryTraceInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	logger = logger.With(zap.String("mod", "grpc"))
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		traceID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(traceMetadataKey); len(ids) > 0 {
				traceID = ids[0]
			}
		}
		if traceID == "" {
			traceID = uuid.New().String()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(traceMetadataKey, traceID))

		start := time.Now()
		resp, err := handler(WithTraceID(ctx, traceID), req)

		logger.Info("grpc call",
			zap.String("method", info.FullMethod),
			zap.String("trace_id", traceID),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}
