package leadgen

import (
	"context"
	"time"
)

// CrawlService abstracts the external place-search crawler: an opaque
// long-running job with start, list-accumulated-items and abort operations.
type CrawlService interface {
	StartCrawl(ctx context.Context, req CrawlRequest) (CrawlJob, error)
	ListItems(ctx context.Context, datasetID string) ([]RawItem, error)
	Abort(ctx context.Context, runID string) error
}

// CreditSource reports the remaining spend available on the crawl-service
// account, used by the pre-run credit guard.
type CreditSource interface {
	RemainingCredits(ctx context.Context) (float64, error)
}

// Sink receives the final output of a run: either one lead set (possibly
// empty) or exactly one error record, never both and never neither.
type Sink interface {
	PushLeads(ctx context.Context, runID string, leads []Lead) error
	PushError(ctx context.Context, runErr RunError) error
}

// ResultReader serves stored run output back to callers. The boolean
// reports whether anything was pushed for the run.
type ResultReader interface {
	Leads(ctx context.Context, runID string) ([]Lead, bool, error)
	Error(ctx context.Context, runID string) (RunError, bool, error)
}

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run-completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for submitted runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper suspends between poll iterations; injected so tests can simulate
// elapsed time without real delay.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
