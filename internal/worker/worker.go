// Package worker implements the run execution loop.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/leadgen"
	"github.com/growthsignal/leadscout/internal/metrics"
)

// Executor runs one discovery request to completion.
type Executor interface {
	Execute(ctx context.Context, runID string, params leadgen.RunParameters) (leadgen.RunCounters, error)
}

// Worker consumes queued runs and executes them one at a time.
type Worker struct {
	queue    leadgen.Queue
	runStore leadgen.RunStore
	executor Executor
	logger   *zap.Logger
}

// New constructs a Worker.
func New(queue leadgen.Queue, runStore leadgen.RunStore, executor Executor, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:    queue,
		runStore: runStore,
		executor: executor,
		logger:   logger,
	}
}

// Run blocks, consuming queued runs until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.WorkerStarted()
	defer metrics.WorkerFinished()

	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued run", zap.String("run_id", item.RunID))
		w.processRun(ctx, item)
	}
}

func (w *Worker) processRun(ctx context.Context, item leadgen.QueueItem) {
	if err := w.runStore.UpdateRunStatus(ctx, item.RunID, leadgen.RunStatusRunning, "", leadgen.RunCounters{}); err != nil {
		w.logger.Error("run status update failed",
			zap.String("run_id", item.RunID),
			zap.Error(err),
		)
		return
	}

	counters, execErr := w.execute(ctx, item)

	status := leadgen.RunStatusSucceeded
	errText := ""
	if execErr != nil {
		status = leadgen.RunStatusFailed
		errText = execErr.Error()
	}
	if err := w.runStore.UpdateRunStatus(ctx, item.RunID, status, errText, counters); err != nil {
		w.logger.Error("final run status update failed",
			zap.String("run_id", item.RunID),
			zap.Error(err),
		)
	}
}

// execute isolates a panicking run so one bad request cannot take the
// worker loop down.
func (w *Worker) execute(ctx context.Context, item leadgen.QueueItem) (counters leadgen.RunCounters, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("run panicked",
				zap.String("run_id", item.RunID),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return w.executor.Execute(ctx, item.RunID, item.Params)
}
