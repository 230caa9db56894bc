// Package acquisition drives one external crawl job against a result quota
// and a wall-clock time budget. The external crawler has no trustworthy
// "stop after N results" semantics and can run to thousands of pages if
// unconstrained; this controller is the system's only safeguard against
// unbounded cost.
package acquisition

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/leadgen"
	"github.com/growthsignal/leadscout/internal/progress"
)

// Outcome labels how the acquisition loop terminated.
type Outcome string

// Terminal outcomes of a controller run.
const (
	OutcomeQuotaReached Outcome = "quota_reached"
	OutcomeTimedOut     Outcome = "time_budget"
)

const defaultPollInterval = 5 * time.Second

// Controller owns exactly one crawl job for the duration of a run: it is
// the sole mutator of the job's lifecycle, and no job outlives its
// controller unreferenced.
type Controller struct {
	service  leadgen.CrawlService
	clock    leadgen.Clock
	sleeper  leadgen.Sleeper
	interval time.Duration
	logger   *zap.Logger
	emitter  progress.Emitter
}

// New constructs a Controller. Clock and sleeper are injected so tests can
// simulate elapsed time without real delay.
func New(
	service leadgen.CrawlService,
	clock leadgen.Clock,
	sleeper leadgen.Sleeper,
	interval time.Duration,
	logger *zap.Logger,
	emitter progress.Emitter,
) *Controller {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	return &Controller{
		service:  service,
		clock:    clock,
		sleeper:  sleeper,
		interval: interval,
		logger:   logger,
		emitter:  emitter,
	}
}

// Run starts the crawl job and polls its accumulated output until the item
// count reaches quota or the elapsed time reaches budget, then issues a
// best-effort abort and returns the last full snapshot, however large.
// Quota wins ties with the time budget: it is the cheaper remediation.
//
// A start failure is fatal and returns an error with no job left running.
// Abort failures are logged only; the termination condition has already
// been met, so remaining crawl work is waste, not a correctness risk.
func (c *Controller) Run(
	ctx context.Context,
	runID string,
	req leadgen.CrawlRequest,
	quota int,
	budget time.Duration,
) ([]leadgen.RawItem, Outcome, error) {
	job, err := c.service.StartCrawl(ctx, req)
	if err != nil {
		return nil, "", fmt.Errorf("start crawl: %w", err)
	}
	start := c.clock.Now()
	c.logger.Info("crawl job started",
		zap.String("run_id", runID),
		zap.String("job_id", job.ID),
		zap.String("dataset_id", job.DatasetID),
		zap.Int("quota", quota),
		zap.Duration("budget", budget),
	)

	var items []leadgen.RawItem
	for {
		if err := c.sleeper.Sleep(ctx, c.interval); err != nil {
			// The budget is the designed cancellation mechanism; an outside
			// context end still must not leave the job running.
			c.abort(job, OutcomeTimedOut)
			return items, OutcomeTimedOut, nil
		}

		snapshot, err := c.service.ListItems(ctx, job.DatasetID)
		if err != nil {
			c.logger.Warn("poll failed, retrying on next tick",
				zap.String("run_id", runID),
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		} else {
			items = snapshot
		}

		c.emitter.Emit(progress.Event{
			RunID: runID,
			TS:    c.clock.Now(),
			Stage: progress.StageRunPoll,
			Items: len(items),
		})

		if quota > 0 && len(items) >= quota {
			c.logger.Info("quota reached, aborting crawl job",
				zap.String("run_id", runID),
				zap.String("job_id", job.ID),
				zap.Int("items", len(items)),
			)
			c.abort(job, OutcomeQuotaReached)
			return items, OutcomeQuotaReached, nil
		}
		if c.clock.Now().Sub(start) >= budget {
			c.logger.Info("time budget exhausted, aborting crawl job",
				zap.String("run_id", runID),
				zap.String("job_id", job.ID),
				zap.Int("items", len(items)),
			)
			c.abort(job, OutcomeTimedOut)
			return items, OutcomeTimedOut, nil
		}
	}
}

// abort is best-effort and idempotent from the controller's perspective.
// It runs on a fresh context so an expired run context cannot strand the job.
func (c *Controller) abort(job leadgen.CrawlJob, outcome Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.service.Abort(ctx, job.ID); err != nil {
		c.logger.Warn("crawl abort failed",
			zap.String("job_id", job.ID),
			zap.String("outcome", string(outcome)),
			zap.Error(err),
		)
	}
}
