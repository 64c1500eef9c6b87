package executor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

func TestPingExecutorSuccessOnAnyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	target := &monitoring.Target{URL: srv.URL, TimeoutMs: 2000}
	outcome := NewPingExecutor().Execute(context.Background(), target)

	assert.True(t, outcome.Success)
	assert.Equal(t, http.StatusNotFound, outcome.StatusCode)
}

func TestPingExecutorUnreachable(t *testing.T) {
	target := &monitoring.Target{URL: "http://127.0.0.1:1", TimeoutMs: 2000}
	outcome := NewPingExecutor().Execute(context.Background(), target)

	assert.False(t, outcome.Success)
}
