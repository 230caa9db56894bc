// Package sinks provides progress.Sink implementations.
package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/progress"
)

// LogSink writes progress events to a zap logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs one event.
func (s *LogSink) Consume(_ context.Context, evt progress.Event) error {
	fields := []zap.Field{
		zap.String("run_id", evt.RunID),
		zap.String("stage", string(evt.Stage)),
		zap.Time("ts", evt.TS),
	}
	switch evt.Stage {
	case progress.StageRunPoll:
		fields = append(fields, zap.Int("items", evt.Items))
	case progress.StageRunDone:
		fields = append(fields, zap.Int("leads", evt.Leads), zap.String("outcome", evt.Outcome))
	case progress.StageRunError:
		fields = append(fields, zap.String("note", evt.Note))
	}
	s.logger.Info("run progress", fields...)
	return nil
}

// Close is a no-op for the log sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
