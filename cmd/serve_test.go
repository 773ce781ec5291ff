package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/weekly-intel/internal/history"
	"github.com/sells-group/weekly-intel/internal/model"
	"github.com/sells-group/weekly-intel/internal/monitoring"
	"github.com/sells-group/weekly-intel/internal/profile"
)

// stubStore serves canned digests keyed "clientID|week"; untouched Store
// methods panic through the embedded nil interface.
type stubStore struct {
	history.Store
	digests map[string]*model.DigestPayload
}

func (s *stubStore) GetDigest(_ context.Context, clientID, week string) (*model.DigestPayload, error) {
	return s.digests[clientID+"|"+week], nil
}

func (s *stubStore) ListRuns(_ context.Context, _ history.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func newTestRouter(st *stubStore, profiles []model.ClientProfile) http.Handler {
	provider := &profile.StaticProvider{Profiles: profiles}
	env := &pipelineEnv{
		Store:     st,
		Profiles:  provider,
		Collector: monitoring.NewCollector(st, provider),
	}
	return newRouter(context.Background(), env, 24)
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(&stubStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_DigestFound(t *testing.T) {
	payload := &model.DigestPayload{
		ClientID:    "client-1",
		Week:        "2026-W35",
		GeneratedAt: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
	}
	st := &stubStore{digests: map[string]*model.DigestPayload{
		"client-1|2026-W35": payload,
	}}
	router := newTestRouter(st, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/client-1/digest?week=2026-W35", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.DigestPayload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "client-1", got.ClientID)
	assert.Equal(t, "2026-W35", got.Week)
}

func TestRouter_DigestMissingIs404(t *testing.T) {
	router := newTestRouter(&stubStore{digests: map[string]*model.DigestPayload{}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clients/client-1/digest?week=2026-W35", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "client-1")
	assert.Contains(t, body["error"], "2026-W35")
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(&stubStore{digests: map[string]*model.DigestPayload{}}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Zero(t, snap.RunsTotal)
}

func TestRouter_TriggerUnknownClient(t *testing.T) {
	router := newTestRouter(&stubStore{}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clients/ghost/run", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
