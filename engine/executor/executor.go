// Package executor implements the pure probe executors: one per protocol
// kind, each a (ctx, Target) -> Outcome function bounded by ctx's deadline
// and the Target's TimeoutMs, with no side effects beyond the network call
// itself (spec §4.1).
package executor

import (
	"context"
	"time"

	"github.com/upweb-network/monitor-engine/domain/monitoring"
)

// Outcome is the result of running one probe, before it becomes a
// persisted Check (the caller stamps ID, TargetID, OwnerID, ProberID).
type Outcome struct {
	Success        bool
	StatusCode     int
	ResponseTimeMs int64
	ErrorKind      monitoring.ErrorKind
	ErrorMessage   string
}

// Executor runs one probe against a target and returns its outcome. It takes
// no region or location; the caller stamps those on the resulting Check. Implementations must respect ctx's deadline and must
// never panic on a malformed target; Validate at the Target layer already
// guarantees minimal sanity.
type Executor interface {
	Execute(ctx context.Context, target *monitoring.Target) Outcome
}

// Registry resolves the Executor for a TargetKind, grounding the Scheduler
// and Submission Gateway's "run a probe" step in a single lookup instead of
// a type switch scattered across callers.
type Registry struct {
	executors map[monitoring.TargetKind]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[monitoring.TargetKind]Executor)}
}

func (r *Registry) Register(kind monitoring.TargetKind, e Executor) {
	r.executors[kind] = e
}

func (r *Registry) For(kind monitoring.TargetKind) (Executor, bool) {
	e, ok := r.executors[kind]
	return e, ok
}

// NewDefaultRegistry wires the five protocol executors spec §4.1 names.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	httpExec := NewHTTPExecutor()
	r.Register(monitoring.KindHTTP, httpExec)
	r.Register(monitoring.KindHTTPS, httpExec)
	r.Register(monitoring.KindDNS, NewDNSExecutor())
	r.Register(monitoring.KindSSL, NewSSLExecutor())
	r.Register(monitoring.KindTCP, NewTCPExecutor())
	r.Register(monitoring.KindPing, NewPingExecutor())
	return r
}

func elapsedMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

func timeoutFor(target *monitoring.Target) time.Duration {
	if target.TimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(target.TimeoutMs) * time.Millisecond
}

func withDeadline(ctx context.Context, target *monitoring.Target) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeoutFor(target))
}
