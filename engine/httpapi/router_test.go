package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
	"github.com/upweb-network/monitor-engine/engine/executor"
	"github.com/upweb-network/monitor-engine/engine/stats"
	"github.com/upweb-network/monitor-engine/engine/submission"
	"github.com/upweb-network/monitor-engine/infrastructure/database"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/infrastructure/ratelimit"
)

type recordingSink struct {
	checks []*monitoring.Check
}

func (r *recordingSink) Submit(ctx context.Context, check *monitoring.Check) {
	r.checks = append(r.checks, check)
}

// newTestEngine builds a router over an in-memory backend holding one
// active target, t1, with no checks and no cooldowns. The tests below never
// reach a network probe: each request fails validation or lookup first, or
// only reads.
func newTestEngine(t *testing.T) (*database.MemoryStore, http.Handler) {
	t.Helper()
	mem := database.NewMemoryStore()
	mem.PutTarget(&monitoring.Target{
		ID: "t1", URL: "https://example.com", Kind: monitoring.KindHTTP,
		Active: true, IntervalSec: 60, TimeoutMs: 5000, Regions: []string{"us-east"},
		AlertThreshold: 2, RecoveryThreshold: 2,
	})
	sink := &recordingSink{}
	gateway := submission.New(submission.Config{}, mem, mem, executor.NewDefaultRegistry(), sink,
		ratelimit.New(ratelimit.DefaultConfig()))
	statsView := stats.New(mem, mem, mem, mem)
	m := metrics.NewForTesting()
	r := New(Config{ReleaseMode: true}, gateway, statsView, nil, m, nil)
	return mem, r
}

func TestListAvailableRequiresProberID(t *testing.T) {
	_, r := newTestEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/available", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAvailableReturnsActiveTargets(t *testing.T) {
	_, r := newTestEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/submissions/available?proberId=p1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Targets []monitoring.Target `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Targets, 1)
	assert.Equal(t, "t1", body.Targets[0].ID)
}

func TestSubmitProbeRejectsUnknownTarget(t *testing.T) {
	_, r := newTestEngine(t)
	payload, _ := json.Marshal(map[string]string{
		"proberId": "p1", "targetId": "missing", "locationTag": "us-east",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitProbeMissingFieldsReturnsBadRequest(t *testing.T) {
	_, r := newTestEngine(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submissions", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualProbeRejectsUnknownActorRole(t *testing.T) {
	_, r := newTestEngine(t)
	payload, _ := json.Marshal(map[string]string{"actorId": "admin-1", "actorRole": "superuser"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/targets/t1/manual-probe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestManualProbeRejectsUnknownTarget(t *testing.T) {
	_, r := newTestEngine(t)
	payload, _ := json.Marshal(map[string]string{"actorId": "admin-1", "actorRole": "admin"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/targets/missing/manual-probe", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTargetStatsWithNoChecksStillReports(t *testing.T) {
	_, r := newTestEngine(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/targets/t1/stats?windowHours=24", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
