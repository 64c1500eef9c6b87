// Package selfstats reports the monitoring engine's own process health:
// liveness/readiness probes in the teacher's ProbeManager style, plus the
// process CPU/memory figures the readiness endpoint surfaces to operators
// deciding whether a node is healthy enough to keep scheduling checks.
package selfstats

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Status is the JSON body served on /readyz and /healthz.
type Status struct {
	Ready      bool    `json:"ready"`
	Live       bool    `json:"live"`
	Message    string  `json:"message,omitempty"`
	UptimeSec  float64 `json:"uptime_seconds"`
	CPUPercent float64 `json:"cpu_percent,omitempty"`
	MemRSSMB   float64 `json:"mem_rss_mb,omitempty"`
	MemSysPct  float64 `json:"mem_system_percent,omitempty"`
}

// ProbeManager tracks process liveness/readiness the way the teacher's
// Kubernetes probe manager does, and additionally samples host resource
// usage via gopsutil for the readiness payload.
type ProbeManager struct {
	ready        atomic.Bool
	live         atomic.Bool
	startTime    time.Time
	startupGrace time.Duration
	proc         *process.Process
}

func NewProbeManager(startupGrace time.Duration) *ProbeManager {
	if startupGrace == 0 {
		startupGrace = 15 * time.Second
	}
	pm := &ProbeManager{startTime: time.Now(), startupGrace: startupGrace}
	pm.live.Store(true)
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		pm.proc = p
	}
	return pm
}

func (p *ProbeManager) SetReady(ready bool) { p.ready.Store(ready) }
func (p *ProbeManager) SetLive(live bool)   { p.live.Store(live) }
func (p *ProbeManager) IsReady() bool       { return p.ready.Load() }
func (p *ProbeManager) IsLive() bool        { return p.live.Load() }

func (p *ProbeManager) inStartupGrace() bool {
	return time.Since(p.startTime) < p.startupGrace
}

// sample reads current resource usage, best-effort: a gopsutil failure
// degrades the payload rather than failing the probe.
func (p *ProbeManager) sample(ctx context.Context) (cpuPct, memRSSMB, memSysPct float64) {
	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		cpuPct = percents[0]
	}
	if p.proc != nil {
		if info, err := p.proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
			memRSSMB = float64(info.RSS) / (1024 * 1024)
		}
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		memSysPct = vm.UsedPercent
	}
	return cpuPct, memRSSMB, memSysPct
}

func (p *ProbeManager) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := Status{Live: p.IsLive(), UptimeSec: time.Since(p.startTime).Seconds()}
		w.Header().Set("Content-Type", "application/json")
		if !status.Live {
			status.Message = "process not live"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}

func (p *ProbeManager) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cpuPct, memRSSMB, memSysPct := p.sample(r.Context())
		status := Status{
			Live:       p.IsLive(),
			Ready:      p.IsReady(),
			UptimeSec:  time.Since(p.startTime).Seconds(),
			CPUPercent: cpuPct,
			MemRSSMB:   memRSSMB,
			MemSysPct:  memSysPct,
		}
		w.Header().Set("Content-Type", "application/json")
		if !status.Ready {
			if p.inStartupGrace() {
				status.Message = "starting up"
			} else {
				status.Message = "not ready"
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(status)
	}
}
