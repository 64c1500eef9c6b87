package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

func TestDNSExecutorResolvesKnownHost(t *testing.T) {
	exec := NewDNSExecutor()
	target := &monitoring.Target{URL: "https://localhost", TimeoutMs: 2000}

	outcome := exec.Execute(context.Background(), target)

	assert.True(t, outcome.Success)
}

func TestDNSExecutorNXDomain(t *testing.T) {
	exec := NewDNSExecutor()
	target := &monitoring.Target{URL: "https://this-host-should-not-exist.invalid", TimeoutMs: 2000}

	outcome := exec.Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.ErrorKind)
}

func TestHostOfStripsSchemeAndPort(t *testing.T) {
	host, err := hostOf("https://example.com:8443/path")
	assert.NoError(t, err)
	assert.Equal(t, "example.com", host)

	host, err = hostOf("example.com:9000")
	assert.NoError(t, err)
	assert.Equal(t, "example.com", host)
}
