// Package runner executes one lead-discovery run end to end: credit guard,
// query generation, cost-bounded acquisition, normalization, deduplication
// and output delivery.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/acquisition"
	"github.com/growthsignal/leadscout/internal/dedupe"
	"github.com/growthsignal/leadscout/internal/leadgen"
	"github.com/growthsignal/leadscout/internal/progress"
)

// QuerySource produces ranked search phrases for run parameters. It is
// total: it never errors and never returns an empty set.
type QuerySource interface {
	Generate(ctx context.Context, p leadgen.RunParameters) []string
}

// Acquirer drives one crawl job to quota or time budget.
type Acquirer interface {
	Run(ctx context.Context, runID string, req leadgen.CrawlRequest, quota int, budget time.Duration) ([]leadgen.RawItem, acquisition.Outcome, error)
}

// Config holds the per-deployment knobs the runner applies to every run.
type Config struct {
	DefaultSector     string
	DefaultMaxResults int
	TimeBudget        time.Duration
	Language          string
	GuardEnabled      bool
	MinCreditsUSD     float64
	CompletionTopic   string
}

// Runner orchestrates a single run. Exactly one terminal push reaches the
// sink per run: a lead set (possibly empty) on success, or one error record
// on failure.
type Runner struct {
	cfg       Config
	queries   QuerySource
	acquirer  Acquirer
	credits   leadgen.CreditSource
	sink      leadgen.Sink
	blobs     leadgen.BlobStore
	publisher leadgen.Publisher
	clock     leadgen.Clock
	logger    *zap.Logger
	emitter   progress.Emitter
}

// New constructs a Runner. Credits, blobs, publisher and emitter are
// optional; a nil credit source disables the guard regardless of config.
func New(
	cfg Config,
	queries QuerySource,
	acquirer Acquirer,
	credits leadgen.CreditSource,
	sink leadgen.Sink,
	blobs leadgen.BlobStore,
	publisher leadgen.Publisher,
	clock leadgen.Clock,
	logger *zap.Logger,
	emitter progress.Emitter,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	return &Runner{
		cfg:       cfg,
		queries:   queries,
		acquirer:  acquirer,
		credits:   credits,
		sink:      sink,
		blobs:     blobs,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		emitter:   emitter,
	}
}

// Execute runs one discovery request to completion. The returned counters
// reflect whatever progress was made; a non-nil error means the run failed
// and an error record was pushed in place of a lead set.
func (r *Runner) Execute(ctx context.Context, runID string, params leadgen.RunParameters) (leadgen.RunCounters, error) {
	params = r.applyDefaults(params)
	counters := leadgen.RunCounters{}

	r.emitter.Emit(progress.Event{
		RunID: runID,
		TS:    r.clock.Now(),
		Stage: progress.StageRunStart,
		Note:  params.Sector,
	})

	if err := r.checkCredits(ctx, runID); err != nil {
		return counters, r.fail(ctx, runID, "guard", err)
	}

	query := r.queries.Generate(ctx, params)[0]
	search := query
	if loc := params.Location(); loc != "" {
		search = fmt.Sprintf("%s in %s", query, loc)
	}
	r.logger.Info("search phrase selected",
		zap.String("run_id", runID),
		zap.String("search", search),
	)

	req := leadgen.CrawlRequest{
		SearchStrings:      []string{search},
		MaxPlacesPerSearch: params.MaxResults,
		Language:           r.cfg.Language,
	}
	items, outcome, err := r.acquirer.Run(ctx, runID, req, params.MaxResults, r.cfg.TimeBudget)
	if err != nil {
		return counters, r.fail(ctx, runID, "crawl", err)
	}
	counters.ItemsObserved = len(items)

	blobURI := r.archiveSnapshot(ctx, runID, items)

	leads := dedupe.Dedupe(dedupe.Normalize(items, params, search), params.MaxResults)
	counters.LeadsEmitted = len(leads)

	if err := r.sink.PushLeads(ctx, runID, leads); err != nil {
		return counters, r.fail(ctx, runID, "sink", fmt.Errorf("push leads: %w", err))
	}

	r.publishCompletion(ctx, runID, outcome, counters, blobURI)

	r.emitter.Emit(progress.Event{
		RunID:   runID,
		TS:      r.clock.Now(),
		Stage:   progress.StageRunDone,
		Items:   counters.ItemsObserved,
		Leads:   counters.LeadsEmitted,
		Outcome: string(outcome),
	})
	r.logger.Info("run completed",
		zap.String("run_id", runID),
		zap.Int("items", counters.ItemsObserved),
		zap.Int("leads", counters.LeadsEmitted),
		zap.String("outcome", string(outcome)),
	)
	return counters, nil
}

func (r *Runner) applyDefaults(params leadgen.RunParameters) leadgen.RunParameters {
	if params.Sector == "" {
		params.Sector = r.cfg.DefaultSector
	}
	if params.MaxResults <= 0 {
		params.MaxResults = r.cfg.DefaultMaxResults
	}
	return params
}

// checkCredits enforces the pre-run spend guard. A shortfall is fatal; a
// failed balance check is advisory and the run proceeds.
func (r *Runner) checkCredits(ctx context.Context, runID string) error {
	if !r.cfg.GuardEnabled || r.credits == nil {
		return nil
	}
	remaining, err := r.credits.RemainingCredits(ctx)
	if err != nil {
		r.logger.Warn("credit check failed, proceeding without guard",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return nil
	}
	if remaining < r.cfg.MinCreditsUSD {
		return fmt.Errorf("insufficient credits: %.2f remaining, %.2f required",
			remaining, r.cfg.MinCreditsUSD)
	}
	return nil
}

// archiveSnapshot stores the raw crawl output for audit. Failures are logged
// only; archival never blocks lead delivery.
func (r *Runner) archiveSnapshot(ctx context.Context, runID string, items []leadgen.RawItem) string {
	if r.blobs == nil || len(items) == 0 {
		return ""
	}
	data, err := json.Marshal(items)
	if err != nil {
		r.logger.Warn("snapshot marshal failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return ""
	}
	path := fmt.Sprintf("snapshots/%s.json", runID)
	uri, err := r.blobs.PutObject(ctx, path, "application/json", data)
	if err != nil {
		r.logger.Warn("snapshot archive failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return ""
	}
	return uri
}

// completionEvent is the payload published after a successful run.
type completionEvent struct {
	RunID    string `json:"run_id"`
	Outcome  string `json:"outcome"`
	Items    int    `json:"items_observed"`
	Leads    int    `json:"leads_emitted"`
	BlobURI  string `json:"blob_uri,omitempty"`
	DoneAtMS int64  `json:"done_at_ms"`
}

func (r *Runner) publishCompletion(ctx context.Context, runID string, outcome acquisition.Outcome, counters leadgen.RunCounters, blobURI string) {
	if r.publisher == nil {
		return
	}
	payload := completionEvent{
		RunID:    runID,
		Outcome:  string(outcome),
		Items:    counters.ItemsObserved,
		Leads:    counters.LeadsEmitted,
		BlobURI:  blobURI,
		DoneAtMS: r.clock.Now().UnixMilli(),
	}
	if _, err := r.publisher.Publish(ctx, r.cfg.CompletionTopic, payload); err != nil {
		r.logger.Warn("completion publish failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
	}
}

// fail pushes the error record, emits the terminal progress event and
// returns the original error for the caller's status update.
func (r *Runner) fail(ctx context.Context, runID, stage string, cause error) error {
	runErr := leadgen.RunError{
		RunID:      runID,
		Stage:      stage,
		Message:    cause.Error(),
		OccurredAt: r.clock.Now(),
	}
	if pushErr := r.sink.PushError(ctx, runErr); pushErr != nil {
		r.logger.Error("error record push failed",
			zap.String("run_id", runID),
			zap.String("stage", stage),
			zap.Error(pushErr),
		)
	}
	r.emitter.Emit(progress.Event{
		RunID:   runID,
		TS:      r.clock.Now(),
		Stage:   progress.StageRunError,
		Outcome: stage,
		Note:    cause.Error(),
	})
	r.logger.Error("run failed",
		zap.String("run_id", runID),
		zap.String("stage", stage),
		zap.Error(cause),
	)
	return fmt.Errorf("%s: %w", stage, cause)
}
