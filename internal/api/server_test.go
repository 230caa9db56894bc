package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/growthsignal/leadscout/internal/config"
	"github.com/growthsignal/leadscout/internal/dispatcher"
	"github.com/growthsignal/leadscout/internal/leadgen"
	queueMemory "github.com/growthsignal/leadscout/internal/queue/memory"
	storeMemory "github.com/growthsignal/leadscout/internal/storage/memory"
)

type fakeIDGen struct {
	ids []string
	idx int
}

func (f *fakeIDGen) NewID() (string, error) {
	if f.idx >= len(f.ids) {
		return "", context.Canceled
	}
	id := f.ids[f.idx]
	f.idx++
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func testAPIConfig() config.Config {
	return config.Config{
		Runs: config.RunsConfig{
			DefaultSector:     "Healthcare",
			DefaultMaxResults: 10,
		},
	}
}

type serverFixture struct {
	server *Server
	store  *storeMemory.RunStore
	sink   *storeMemory.Sink
	queue  *queueMemory.Queue
}

func newFixture(t *testing.T, cfg config.Config) *serverFixture {
	t.Helper()
	store := storeMemory.NewRunStore()
	sink := storeMemory.NewSink()
	q := queueMemory.NewQueue(10)
	dispatch := dispatcher.New(q, nil)
	idGen := &fakeIDGen{ids: []string{"run-1", "run-2", "run-3"}}
	clock := &fakeClock{now: time.Unix(100, 0).UTC()}
	server := NewServer(store, sink, dispatch, idGen, clock, cfg, zap.NewNop())
	return &serverFixture{server: server, store: store, sink: sink, queue: q}
}

func TestServer_SubmitRun_Succeeds(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())

	body := []byte(`{"sector":"Healthcare","city":"Austin","state":"TX","max_results":5}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")

	item, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", item.RunID)
	require.Equal(t, "Austin", item.Params.City)
	require.Equal(t, 5, item.Params.MaxResults)

	run, err := fx.store.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, leadgen.RunStatusQueued, run.Status)
}

func TestServer_SubmitRun_AppliesDefaults(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	item, err := fx.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Healthcare", item.Params.Sector)
	require.Equal(t, 10, item.Params.MaxResults)
}

func TestServer_SubmitRun_InvalidJSON(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()

	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SubmitRun_RejectsBadQuota(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())

	for _, body := range []string{
		`{"max_results":-1}`,
		`{"max_results":1000}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		fx.server.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestServer_GetRunStatus(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())
	require.NoError(t, fx.store.CreateRun(context.Background(), leadgen.Run{
		ID: "run-9", Status: leadgen.RunStatusRunning,
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-9/status", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "running")

	req = httptest.NewRequest(http.MethodGet, "/v1/runs/missing/status", nil)
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_GetRunResult_NotFinished(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())
	require.NoError(t, fx.store.CreateRun(context.Background(), leadgen.Run{
		ID: "run-9", Status: leadgen.RunStatusRunning,
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-9/result", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestServer_GetRunResult_ReturnsLeads(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())
	ctx := context.Background()
	require.NoError(t, fx.store.CreateRun(ctx, leadgen.Run{ID: "run-9", Status: leadgen.RunStatusQueued}))
	require.NoError(t, fx.store.UpdateRunStatus(ctx, "run-9", leadgen.RunStatusSucceeded, "", leadgen.RunCounters{LeadsEmitted: 1}))
	require.NoError(t, fx.sink.PushLeads(ctx, "run-9", []leadgen.Lead{{Name: "Mercy Clinic", Address: "100 Main St"}}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-9/result", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Mercy Clinic")
	require.Contains(t, rec.Body.String(), `"count":1`)
}

func TestServer_GetRunResult_ReturnsErrorRecord(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())
	ctx := context.Background()
	require.NoError(t, fx.store.CreateRun(ctx, leadgen.Run{ID: "run-9", Status: leadgen.RunStatusQueued}))
	require.NoError(t, fx.store.UpdateRunStatus(ctx, "run-9", leadgen.RunStatusFailed, "guard", leadgen.RunCounters{}))
	require.NoError(t, fx.sink.PushError(ctx, leadgen.RunError{
		RunID: "run-9", Stage: "guard", Message: "insufficient credits",
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run-9/result", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "insufficient credits")
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testAPIConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	fx := newFixture(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	fx := newFixture(t, testAPIConfig())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")

	req = httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec = httptest.NewRecorder()
	fx.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
