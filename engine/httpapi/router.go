package httpapi

import (
	"net/http/pprof"

	"github.com/gin-gonic/gin"

	"github.com/upweb-network/monitor-engine/engine/stats"
	"github.com/upweb-network/monitor-engine/engine/submission"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/infrastructure/selfstats"
)

type handlers struct {
	gateway *submission.Gateway
	stats   *stats.View
}

// Config configures the router's non-handler concerns.
type Config struct {
	MaxBodyBytes int64 // default 1MiB
	ReleaseMode  bool
}

// New builds the engine's gin.Engine: submission endpoints, the Stats View
// query, and liveness/readiness. It does not serve the Prometheus /metrics
// endpoint; cmd/monitord mounts that on its own router.
func New(cfg Config, gateway *submission.Gateway, statsView *stats.View, probes *selfstats.ProbeManager, m *metrics.Metrics, logger *logging.Logger) *gin.Engine {
	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(recoveryMiddleware(logger), loggingMiddleware(logger), metricsMiddleware(m), bodyLimitMiddleware(cfg.MaxBodyBytes))

	if probes != nil {
		r.GET("/healthz", gin.WrapF(probes.LivenessHandler()))
		r.GET("/readyz", gin.WrapF(probes.ReadinessHandler()))
	}

	r.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))

	h := &handlers{gateway: gateway, stats: statsView}

	api := r.Group("/api/v1")
	{
		submissions := api.Group("/submissions")
		{
			submissions.POST("", h.submitProbe)
			submissions.GET("/available", h.listAvailable)
		}

		targets := api.Group("/targets")
		{
			targets.GET("/:id/stats", h.targetStats)
			targets.POST("/:id/manual-probe", h.manualProbe)
		}
	}

	return r
}
