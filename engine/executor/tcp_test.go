package executor

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

func TestTCPExecutorSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	target := &monitoring.Target{URL: ln.Addr().String(), TimeoutMs: 2000}
	outcome := NewTCPExecutor().Execute(context.Background(), target)

	assert.True(t, outcome.Success)
}

func TestTCPExecutorConnectionRefused(t *testing.T) {
	target := &monitoring.Target{URL: "127.0.0.1:1", TimeoutMs: 2000}
	outcome := NewTCPExecutor().Execute(context.Background(), target)

	assert.False(t, outcome.Success)
	assert.Equal(t, monitoring.ErrorTransport, outcome.ErrorKind)
}

func TestHostPortOfDefaultsPortByScheme(t *testing.T) {
	cases := []struct {
		name string
		url  string
		kind monitoring.TargetKind
		want string
	}{
		{"https scheme defaults to 443", "https://example.com", monitoring.KindTCP, "example.com:443"},
		{"http scheme defaults to 80", "http://example.com", monitoring.KindTCP, "example.com:80"},
		{"bare host ssl kind defaults to 443", "example.com", monitoring.KindSSL, "example.com:443"},
		{"bare host tcp kind defaults to 80", "example.com", monitoring.KindTCP, "example.com:80"},
		{"explicit port wins over scheme", "https://example.com:8443", monitoring.KindTCP, "example.com:8443"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := &monitoring.Target{URL: tc.url, Kind: tc.kind}
			addr, err := hostPortOf(target.URL, defaultPortFor(target))
			require.NoError(t, err)
			assert.Equal(t, tc.want, addr)
		})
	}
}
