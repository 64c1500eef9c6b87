package executor

import (
	"context"
	"net/http"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// PingExecutor approximates reachability with an HTTP HEAD request rather
// than raw ICMP: ICMP echo needs CAP_NET_RAW (or setuid), which a prober
// running as an unprivileged roaming process (spec §1, §4.3) won't have.
// A HEAD to the target's URL is a reasonable stand-in for "is this host up"
// when the caller only configured ping because the target accepts HTTP.
type PingExecutor struct {
	newClient func(timeout time.Duration) *http.Client
}

func NewPingExecutor() *PingExecutor {
	return &PingExecutor{newClient: func(timeout time.Duration) *http.Client {
		return &http.Client{Timeout: timeout}
	}}
}

func (e *PingExecutor) Execute(ctx context.Context, target *monitoring.Target) Outcome {
	ctx, cancel := withDeadline(ctx, target)
	defer cancel()

	client := e.newClient(timeoutFor(target))

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target.URL, nil)
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

	// Any response at all means the host is reachable; ping doesn't check
	// the status code the way an http/https target does.
	return Outcome{Success: true, StatusCode: resp.StatusCode, ResponseTimeMs: elapsed}
}
