package trace

import (
	"time"

	"go.uber.org/zap"
)

// ZapTracer emits events as structured zap records.
type ZapTracer struct {
	log   *zap.Logger
	start time.Time
}

// NewZapTracer creates a ZapTracer tagging every record with the run id.
func NewZapTracer(log *zap.Logger, runID string) *ZapTracer {
	return &ZapTracer{
		log:   log.With(zap.String("run", runID)),
		start: time.Now(),
	}
}

// Trace logs ev at info level.
func (t *ZapTracer) Trace(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	t.log.Info(ev.Message,
		zap.Time("ts", ev.Time),
		zap.Duration("elapsed", ev.Time.Sub(t.start)),
		zap.Int("worker", ev.Worker),
		zap.Int("job", ev.Job),
		zap.String("phase", ev.Phase),
		zap.String("request_id", ev.RequestID),
	)
}

// Sync flushes buffered records.
func (t *ZapTracer) Sync() error {
	return t.log.Sync()
}
