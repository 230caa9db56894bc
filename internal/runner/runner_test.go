package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/acquisition"
	"github.com/growthsignal/leadscout/internal/leadgen"
	pubmem "github.com/growthsignal/leadscout/internal/publisher/memory"
	storemem "github.com/growthsignal/leadscout/internal/storage/memory"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fakeQueries struct {
	queries []string
	gotP    leadgen.RunParameters
}

func (f *fakeQueries) Generate(_ context.Context, p leadgen.RunParameters) []string {
	f.gotP = p
	return f.queries
}

type fakeAcquirer struct {
	items   []leadgen.RawItem
	outcome acquisition.Outcome
	err     error

	calls     int
	gotReq    leadgen.CrawlRequest
	gotQuota  int
	gotBudget time.Duration
}

func (f *fakeAcquirer) Run(_ context.Context, _ string, req leadgen.CrawlRequest, quota int, budget time.Duration) ([]leadgen.RawItem, acquisition.Outcome, error) {
	f.calls++
	f.gotReq = req
	f.gotQuota = quota
	f.gotBudget = budget
	return f.items, f.outcome, f.err
}

type fakeCredits struct {
	remaining float64
	err       error
	calls     int
}

func (f *fakeCredits) RemainingCredits(context.Context) (float64, error) {
	f.calls++
	return f.remaining, f.err
}

func testConfig() Config {
	return Config{
		DefaultSector:     "Healthcare",
		DefaultMaxResults: 10,
		TimeBudget:        5 * time.Minute,
		Language:          "en",
		GuardEnabled:      true,
		MinCreditsUSD:     0.5,
		CompletionTopic:   "run-completed",
	}
}

func TestExecuteHappyPath(t *testing.T) {
	t.Parallel()

	queries := &fakeQueries{queries: []string{"dental clinics", "family practices"}}
	acq := &fakeAcquirer{
		items: []leadgen.RawItem{
			{"title": "Mercy Clinic", "address": "100 Main St", "totalScore": 4.5},
			{"title": "Mercy Clinic", "address": "100 Main St"},
			{"title": "Harbor Dental", "address": "2 Pier Rd"},
		},
		outcome: acquisition.OutcomeQuotaReached,
	}
	credits := &fakeCredits{remaining: 8.0}
	sink := storemem.NewSink()
	blobs := storemem.NewBlobStore()
	pub := pubmem.New()

	r := New(testConfig(), queries, acq, credits, sink, blobs, pub,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop(), nil)

	params := leadgen.RunParameters{
		Sector: "Healthcare", City: "Austin", State: "TX",
		Keyword: "clinic", MaxResults: 2,
	}
	counters, err := r.Execute(context.Background(), "run-1", params)
	require.NoError(t, err)
	require.Equal(t, leadgen.RunCounters{ItemsObserved: 3, LeadsEmitted: 2}, counters)

	// Only the top-ranked query runs, composed with the location.
	require.Equal(t, []string{"dental clinics in Austin, TX"}, acq.gotReq.SearchStrings)
	require.Equal(t, 2, acq.gotReq.MaxPlacesPerSearch)
	require.Equal(t, "en", acq.gotReq.Language)
	require.Equal(t, 2, acq.gotQuota)
	require.Equal(t, 5*time.Minute, acq.gotBudget)

	leads, ok, err := sink.Leads(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, leads, 2)
	require.Equal(t, "Mercy Clinic", leads[0].Name)
	require.Equal(t, "Harbor Dental", leads[1].Name)
	require.Equal(t, "dental clinics in Austin, TX", leads[0].SearchQuery)

	_, errFound, err := sink.Error(context.Background(), "run-1")
	require.NoError(t, err)
	require.False(t, errFound, "success must not push an error record")

	_, archived := blobs.GetObject("snapshots/run-1.json")
	require.True(t, archived)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "run-completed", msgs[0].Topic)
}

func TestExecuteGuardShortfallFailsBeforeCrawl(t *testing.T) {
	t.Parallel()

	queries := &fakeQueries{queries: []string{"clinics"}}
	acq := &fakeAcquirer{outcome: acquisition.OutcomeQuotaReached}
	credits := &fakeCredits{remaining: 0.25}
	sink := storemem.NewSink()

	r := New(testConfig(), queries, acq, credits, sink, nil, nil,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop(), nil)

	_, err := r.Execute(context.Background(), "run-2", leadgen.RunParameters{Sector: "Healthcare"})
	require.Error(t, err)
	require.Zero(t, acq.calls, "crawl must not start on a credit shortfall")

	runErr, ok, getErr := sink.Error(context.Background(), "run-2")
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, "guard", runErr.Stage)

	_, leadsPushed, getErr := sink.Leads(context.Background(), "run-2")
	require.NoError(t, getErr)
	require.False(t, leadsPushed)
}

func TestExecuteGuardCheckErrorIsAdvisory(t *testing.T) {
	t.Parallel()

	queries := &fakeQueries{queries: []string{"clinics"}}
	acq := &fakeAcquirer{outcome: acquisition.OutcomeTimedOut}
	credits := &fakeCredits{err: errors.New("limits endpoint down")}
	sink := storemem.NewSink()

	r := New(testConfig(), queries, acq, credits, sink, nil, nil,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop(), nil)

	_, err := r.Execute(context.Background(), "run-3", leadgen.RunParameters{Sector: "Healthcare"})
	require.NoError(t, err)
	require.Equal(t, 1, acq.calls, "a failed balance check must not block the run")
}

func TestExecuteCrawlFailurePushesErrorRecord(t *testing.T) {
	t.Parallel()

	queries := &fakeQueries{queries: []string{"clinics"}}
	acq := &fakeAcquirer{err: errors.New("actor start rejected")}
	sink := storemem.NewSink()

	cfg := testConfig()
	cfg.GuardEnabled = false
	r := New(cfg, queries, acq, nil, sink, nil, nil,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop(), nil)

	_, err := r.Execute(context.Background(), "run-4", leadgen.RunParameters{Sector: "Healthcare"})
	require.Error(t, err)

	runErr, ok, getErr := sink.Error(context.Background(), "run-4")
	require.NoError(t, getErr)
	require.True(t, ok)
	require.Equal(t, "crawl", runErr.Stage)
	require.Contains(t, runErr.Message, "actor start rejected")
}

func TestExecuteAppliesDefaults(t *testing.T) {
	t.Parallel()

	queries := &fakeQueries{queries: []string{"clinics"}}
	acq := &fakeAcquirer{outcome: acquisition.OutcomeQuotaReached}
	sink := storemem.NewSink()

	cfg := testConfig()
	cfg.GuardEnabled = false
	r := New(cfg, queries, acq, nil, sink, nil, nil,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop(), nil)

	_, err := r.Execute(context.Background(), "run-5", leadgen.RunParameters{})
	require.NoError(t, err)
	require.Equal(t, "Healthcare", queries.gotP.Sector)
	require.Equal(t, 10, acq.gotQuota)
	// No location fields, so the query runs bare.
	require.Equal(t, []string{"clinics"}, acq.gotReq.SearchStrings)
}

func TestExecuteEmptyResultStillPushesLeadSet(t *testing.T) {
	t.Parallel()

	queries := &fakeQueries{queries: []string{"clinics"}}
	acq := &fakeAcquirer{outcome: acquisition.OutcomeTimedOut}
	sink := storemem.NewSink()
	blobs := storemem.NewBlobStore()

	cfg := testConfig()
	cfg.GuardEnabled = false
	r := New(cfg, queries, acq, nil, sink, blobs, nil,
		fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop(), nil)

	counters, err := r.Execute(context.Background(), "run-6", leadgen.RunParameters{Sector: "Healthcare"})
	require.NoError(t, err)
	require.Zero(t, counters.LeadsEmitted)

	leads, ok, getErr := sink.Leads(context.Background(), "run-6")
	require.NoError(t, getErr)
	require.True(t, ok, "an empty lead set is still a delivered result")
	require.Empty(t, leads)

	_, archived := blobs.GetObject("snapshots/run-6.json")
	require.False(t, archived, "nothing to archive for an empty snapshot")
}
