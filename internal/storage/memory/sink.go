package memory

import (
	"context"
	"sync"

	"github.com/growthsignal/leadscout/internal/leadgen"
)

// Sink keeps pushed lead sets and error records in memory. It doubles as
// the result backend for the API in development mode.
type Sink struct {
	mu     sync.RWMutex
	leads  map[string][]leadgen.Lead
	errors map[string]leadgen.RunError
}

// NewSink constructs a Sink.
func NewSink() *Sink {
	return &Sink{
		leads:  make(map[string][]leadgen.Lead),
		errors: make(map[string]leadgen.RunError),
	}
}

// PushLeads records the final lead set for a run.
func (s *Sink) PushLeads(_ context.Context, runID string, leads []leadgen.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]leadgen.Lead, len(leads))
	copy(out, leads)
	s.leads[runID] = out
	return nil
}

// PushError records the structured error record for a run.
func (s *Sink) PushError(_ context.Context, runErr leadgen.RunError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[runErr.RunID] = runErr
	return nil
}

// Leads returns the lead set pushed for a run, if any.
func (s *Sink) Leads(_ context.Context, runID string) ([]leadgen.Lead, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	leads, ok := s.leads[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]leadgen.Lead, len(leads))
	copy(out, leads)
	return out, true, nil
}

// Error returns the error record pushed for a run, if any.
func (s *Sink) Error(_ context.Context, runID string) (leadgen.RunError, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runErr, ok := s.errors[runID]
	return runErr, ok, nil
}
