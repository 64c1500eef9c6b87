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

// TCPExecutor dials Target.URL (a host:port pair) and reports whether the
// connection completes within the configured timeout.
type TCPExecutor struct {
	dialer *net.Dialer
}

func NewTCPExecutor() *TCPExecutor {
	return &TCPExecutor{dialer: &net.Dialer{}}
}

func (e *TCPExecutor) Execute(ctx context.Context, target *monitoring.Target) Outcome {
	ctx, cancel := withDeadline(ctx, target)
	defer cancel()

	addr, err := hostPortOf(target.URL, defaultPortFor(target))
	if err != nil {
		return Outcome{ErrorKind: monitoring.ErrorTransport, ErrorMessage: err.Error()}
	}

	start := time.Now()
	conn, err := e.dialer.DialContext(ctx, "tcp", addr)
	elapsed := elapsedMs(start)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTimeout, ErrorMessage: err.Error()}
		}
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTransport, ErrorMessage: err.Error()}
	}
	conn.Close()
	return Outcome{Success: true, ResponseTimeMs: elapsed}
}

// hostPortOf normalizes a URL or bare host:port into a dial address, falling
// back to defaultPort when raw carries no explicit port.
func hostPortOf(raw, defaultPort string) (string, error) {
	host, err := hostOf(raw)
	if err != nil {
		return "", err
	}
	port := ""
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil {
			port = u.Port()
		}
	} else if _, p, err := net.SplitHostPort(raw); err == nil {
		port = p
	}
	if port != "" {
		return net.JoinHostPort(host, port), nil
	}
	return net.JoinHostPort(host, defaultPort), nil
}

// defaultPortFor picks the implicit dial port for a TCP target: the URL's
// own scheme wins when it names one (an "https://" TCP target still means
// port 443), otherwise KindSSL targets default to 443 and everything else
// to 80.
func defaultPortFor(target *monitoring.Target) string {
	if strings.Contains(target.URL, "://") {
		if u, err := url.Parse(target.URL); err == nil {
			switch u.Scheme {
			case "https", "ssl", "tls":
				return "443"
			case "http", "tcp":
				return "80"
			}
		}
	}
	if target.Kind == monitoring.KindSSL {
		return "443"
	}
	return "80"
}
