package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogStorage пишет события журнала в zap. Используется, когда Postgres не настроен.
type LogStorage struct {
	logger *zap.Logger
}

func NewLogStorage(logger *zap.Logger) *LogStorage {
	return &LogStorage{logger: logger.Named("journal")}
}

func (s *LogStorage) WriteBatch(_ context.Context, events []Event) error {
	for _, e := range events {
		fields := []zap.Field{
			zap.String("id", e.ID),
			zap.String("trace_id", e.TraceID),
			zap.String("instruction", e.Instruction),
			zap.String("robot", e.Robot),
			zap.String("signer", e.Signer),
			zap.String("status", e.Status),
			zap.Int64("duration_ms", e.DurationMs),
			zap.Time("ts", e.Timestamp),
		}
		if e.ErrorCode != nil {
			fields = append(fields, zap.Uint32("error_code", *e.ErrorCode))
		}
		if e.Error != "" {
			fields = append(fields, zap.String("error", e.Error))
		}
		s.logger.Info("invocation", fields...)
	}
	return nil
}
