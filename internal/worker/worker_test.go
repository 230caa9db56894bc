package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/leadgen"
	queuemem "github.com/growthsignal/leadscout/internal/queue/memory"
	storemem "github.com/growthsignal/leadscout/internal/storage/memory"
)

type fakeExecutor struct {
	counters leadgen.RunCounters
	err      error
	panics   bool
}

func (f *fakeExecutor) Execute(context.Context, string, leadgen.RunParameters) (leadgen.RunCounters, error) {
	if f.panics {
		panic("boom")
	}
	return f.counters, f.err
}

func waitForTerminal(t *testing.T, store leadgen.RunStore, runID string) leadgen.Run {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("run never reached a terminal status")
		default:
		}
		run, err := store.GetRun(context.Background(), runID)
		if err == nil &&
			(run.Status == leadgen.RunStatusSucceeded || run.Status == leadgen.RunStatusFailed) {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startWorker(t *testing.T, exec Executor) (leadgen.Queue, leadgen.RunStore) {
	t.Helper()
	queue := queuemem.NewQueue(4)
	store := storemem.NewRunStore()
	w := New(queue, store, exec, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return queue, store
}

func TestWorkerRecordsSuccess(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{counters: leadgen.RunCounters{ItemsObserved: 7, LeadsEmitted: 5}}
	queue, store := startWorker(t, exec)

	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, leadgen.Run{ID: "run-1", Status: leadgen.RunStatusQueued}))
	require.NoError(t, queue.Enqueue(ctx, leadgen.QueueItem{RunID: "run-1"}))

	run := waitForTerminal(t, store, "run-1")
	require.Equal(t, leadgen.RunStatusSucceeded, run.Status)
	require.Equal(t, leadgen.RunCounters{ItemsObserved: 7, LeadsEmitted: 5}, run.Counters)
	require.Empty(t, run.ErrorText)
}

func TestWorkerRecordsFailure(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{err: errors.New("guard: insufficient credits")}
	queue, store := startWorker(t, exec)

	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, leadgen.Run{ID: "run-2", Status: leadgen.RunStatusQueued}))
	require.NoError(t, queue.Enqueue(ctx, leadgen.QueueItem{RunID: "run-2"}))

	run := waitForTerminal(t, store, "run-2")
	require.Equal(t, leadgen.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "insufficient credits")
}

func TestWorkerSurvivesPanickingRun(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{panics: true}
	queue, store := startWorker(t, exec)

	ctx := context.Background()
	require.NoError(t, store.CreateRun(ctx, leadgen.Run{ID: "run-3", Status: leadgen.RunStatusQueued}))
	require.NoError(t, queue.Enqueue(ctx, leadgen.QueueItem{RunID: "run-3"}))

	run := waitForTerminal(t, store, "run-3")
	require.Equal(t, leadgen.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "panicked")

	// The loop must keep serving after a panic.
	exec.panics = false
	exec.counters = leadgen.RunCounters{LeadsEmitted: 1}
	require.NoError(t, store.CreateRun(ctx, leadgen.Run{ID: "run-4", Status: leadgen.RunStatusQueued}))
	require.NoError(t, queue.Enqueue(ctx, leadgen.QueueItem{RunID: "run-4"}))

	run = waitForTerminal(t, store, "run-4")
	require.Equal(t, leadgen.RunStatusSucceeded, run.Status)
}
