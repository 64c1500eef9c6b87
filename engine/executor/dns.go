package executor

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// DNSExecutor resolves Target.URL's host and reports ErrorNXDomain or
// ErrorServFail where net.Resolver's error shape distinguishes them.
// The standard library resolver is used rather than a third-party DNS
// client; see DESIGN.md for why no pack dependency fit this concern.
type DNSExecutor struct {
	resolver *net.Resolver
}

func NewDNSExecutor() *DNSExecutor {
	return &DNSExecutor{resolver: net.DefaultResolver}
}

func (e *DNSExecutor) Execute(ctx context.Context, target *monitoring.Target) Outcome {
	ctx, cancel := withDeadline(ctx, target)
	defer cancel()

	host, err := hostOf(target.URL)
	if err != nil {
		return Outcome{ErrorKind: monitoring.ErrorDNS, ErrorMessage: err.Error()}
	}

	start := time.Now()
	addrs, err := e.resolver.LookupHost(ctx, host)
	elapsed := elapsedMs(start)
	if err != nil {
		return classifyDNSError(err, elapsed)
	}
	if len(addrs) == 0 {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorNXDomain, ErrorMessage: "no addresses returned"}
	}
	return Outcome{Success: true, ResponseTimeMs: elapsed}
}

func classifyDNSError(err error, elapsed int64) Outcome {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorNXDomain, ErrorMessage: err.Error()}
		}
		if dnsErr.IsTimeout {
			return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTimeout, ErrorMessage: err.Error()}
		}
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorServFail, ErrorMessage: err.Error()}
	}
	return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorDNS, ErrorMessage: err.Error()}
}

// hostOf extracts the bare hostname from a URL or host:port string, since
// DNS/TCP/SSL targets may be stored without a scheme.
func hostOf(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		host := raw
		if h, _, err := net.SplitHostPort(raw); err == nil {
			host = h
		}
		if host == "" {
			return "", errors.New("empty host")
		}
		return host, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
