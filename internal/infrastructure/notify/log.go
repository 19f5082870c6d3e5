package notify

import (
	"context"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log at their level
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier. A nil logger discards everything.
func NewLogNotifier(l *zap.Logger) *LogNotifier {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogNotifier{logger: l}
}

// Notify implements shared.Notifier
func (n *LogNotifier) Notify(ctx context.Context, note shared.Notification) {
	l := logger.WithLogger(ctx, n.logger)
	fields := []zap.Field{
		zap.String("code", note.Code),
		zap.String("collection", note.Collection.String()),
		zap.String("record_id", note.RecordID),
		zap.String("tenant", note.TenantID),
	}
	switch note.Level {
	case shared.LevelError:
		l.Error(note.Message, fields...)
	case shared.LevelWarning:
		l.Warn(note.Message, fields...)
	default:
		l.Info(note.Message, fields...)
	}
}

// Multi delivers every notification to each notifier in order
type Multi []shared.Notifier

// Notify implements shared.Notifier
func (m Multi) Notify(ctx context.Context, n shared.Notification) {
	for _, it := range m {
		if it != nil {
			it.Notify(ctx, n)
		}
	}
}
