package sinks

import (
	"context"

	"github.com/growthsignal/leadscout/internal/metrics"
	"github.com/growthsignal/leadscout/internal/progress"
)

// PrometheusSink translates progress events into metrics collectors.
type PrometheusSink struct{}

// NewPrometheusSink initializes the collectors and returns the sink.
func NewPrometheusSink() *PrometheusSink {
	metrics.Init()
	return &PrometheusSink{}
}

// Consume updates the collectors matching the event stage.
func (s *PrometheusSink) Consume(_ context.Context, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunPoll:
		metrics.ObservePoll()
	case progress.StageRunDone:
		metrics.ObserveRun("succeeded")
		metrics.ObserveLeads(evt.Leads)
		if evt.Outcome != "" {
			metrics.ObserveAbort(evt.Outcome)
		}
	case progress.StageRunError:
		metrics.ObserveRun("failed")
	}
	return nil
}

// Close is a no-op for the prometheus sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
