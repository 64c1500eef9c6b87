package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

func newTestTarget(url string) *monitoring.Target {
	return &monitoring.Target{
		ID: "t1", URL: url, Kind: monitoring.KindHTTP,
		TimeoutMs: 2000, ExpectedStatus: http.StatusOK,
	}
}

func TestHTTPExecutorSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor()
	outcome := exec.Execute(context.Background(), newTestTarget(srv.URL))

	assert.True(t, outcome.Success)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Empty(t, outcome.ErrorKind)
}

func TestHTTPExecutorStatusMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	exec := NewHTTPExecutor()
	outcome := exec.Execute(context.Background(), newTestTarget(srv.URL))

	assert.False(t, outcome.Success)
	assert.Equal(t, monitoring.ErrorStatusMismatch, outcome.ErrorKind)
	assert.Equal(t, http.StatusInternalServerError, outcome.StatusCode)
}

func TestHTTPExecutorConnectionRefused(t *testing.T) {
	exec := NewHTTPExecutor()
	target := newTestTarget("http://127.0.0.1:1")

	outcome := exec.Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.Equal(t, monitoring.ErrorTransport, outcome.ErrorKind)
}

func TestHTTPExecutorTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()

	exec := NewHTTPExecutor()
	target := newTestTarget(srv.URL)
	target.TimeoutMs = 50

	outcome := exec.Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.Equal(t, monitoring.ErrorTimeout, outcome.ErrorKind)
}

func TestHTTPExecutorDefaultsExpectedStatusTo200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := newTestTarget(srv.URL)
	target.ExpectedStatus = 0

	outcome := NewHTTPExecutor().Execute(context.Background(), target)
	require.True(t, outcome.Success)
}
