package executor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// httptest.NewTLSServer uses a self-signed cert the client does not trust,
// so a plain SSLExecutor run against it exercises the untrusted-chain path;
// that's the one outcome reachable without standing up a real CA.
func TestSSLExecutorUntrustedChain(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := &monitoring.Target{URL: srv.URL, TimeoutMs: 2000}
	outcome := NewSSLExecutor().Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.Contains(t, []monitoring.ErrorKind{monitoring.ErrorCertUntrusted, monitoring.ErrorTLS}, outcome.ErrorKind)
}

func TestSSLExecutorConnectionRefused(t *testing.T) {
	target := &monitoring.Target{URL: "127.0.0.1:1", TimeoutMs: 2000}
	outcome := NewSSLExecutor().Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.Equal(t, monitoring.ErrorTransport, outcome.ErrorKind)
}

// TestSSLExecutorHandshakeTimeout listens but never speaks TLS, so the
// client's handshake deadline fires before any data arrives.
func TestSSLExecutorHandshakeTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		<-make(chan struct{}) // hold the connection open without responding
	}()

	target := &monitoring.Target{URL: ln.Addr().String(), TimeoutMs: 50}
	outcome := NewSSLExecutor().Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.Equal(t, monitoring.ErrorHandshakeTimeout, outcome.ErrorKind)
}

// TestSSLExecutorDefaultsToPort443 exercises a schemeful, portless URL: SSL
// probes must default to :443 rather than tcp.go's general-purpose :80.
func TestSSLExecutorDefaultsToPort443(t *testing.T) {
	addr, err := hostPortOf("https://example.com", "443")
	require.NoError(t, err)
	assert.Equal(t, "example.com:443", addr)
}
