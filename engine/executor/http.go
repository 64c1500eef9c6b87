package executor

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// maxRedirects bounds the HTTP executor's redirect chain (spec §4.1: "follow
// redirects up to a bound"), so a misconfigured target can't spin the
// executor worker pool on an infinite redirect loop.
const maxRedirects = 5

// HTTPExecutor probes http and https targets with a plain GET, comparing
// the final status code against Target.ExpectedStatus.
type HTTPExecutor struct {
	newClient func(timeout time.Duration) *http.Client
}

func NewHTTPExecutor() *HTTPExecutor {
	return &HTTPExecutor{newClient: newHTTPClient}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout: timeout,
		},
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, target *monitoring.Target) Outcome {
	ctx, cancel := withDeadline(ctx, target)
	defer cancel()

	client := e.newClient(timeoutFor(target))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return Outcome{ErrorKind: monitoring.ErrorTransport, ErrorMessage: err.Error()}
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := elapsedMs(start)
	if err != nil {
		return classifyHTTPError(err, elapsed)
	}
	defer resp.Body.Close()

	expected := target.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}

	if resp.StatusCode != expected {
		return Outcome{
			StatusCode:     resp.StatusCode,
			ResponseTimeMs: elapsed,
			ErrorKind:      monitoring.ErrorStatusMismatch,
			ErrorMessage:   http.StatusText(resp.StatusCode),
		}
	}

	return Outcome{Success: true, StatusCode: resp.StatusCode, ResponseTimeMs: elapsed}
}

func classifyHTTPError(err error, elapsed int64) Outcome {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTimeout, ErrorMessage: err.Error()}
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTLS, ErrorMessage: err.Error()}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTimeout, ErrorMessage: err.Error()}
	}
	return Outcome{ResponseTimeMs: elapsed, ErrorKind: monitoring.ErrorTransport, ErrorMessage: err.Error()}
}
