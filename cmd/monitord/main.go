// Command monitord runs the monitoring engine: the Scheduler, the Ad-hoc
// Submission Gateway, the Result Processor, the Payment Dispatcher, the
// Notifier and its push Hub, and the Stats View's nightly RollupJob, wired
// together the way the teacher's cmd/gateway wires its own router and
// graceful shutdown (infrastructure-level concerns only; the teacher's
// MarbleRun enclave attestation, JWT/OAuth and Neo wallet-signature
// middleware have no analogue here — auth is an external collaborator's
// concern, spec §1).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upweb-network/monitor-engine/engine/executor"
	"github.com/upweb-network/monitor-engine/engine/httpapi"
	"github.com/upweb-network/monitor-engine/engine/notifier"
	"github.com/upweb-network/monitor-engine/engine/payment"
	"github.com/upweb-network/monitor-engine/engine/processor"
	"github.com/upweb-network/monitor-engine/engine/scheduler"
	"github.com/upweb-network/monitor-engine/engine/stats"
	"github.com/upweb-network/monitor-engine/engine/submission"
	"github.com/upweb-network/monitor-engine/infrastructure/config"
	"github.com/upweb-network/monitor-engine/infrastructure/database"
	"github.com/upweb-network/monitor-engine/infrastructure/database/migrations"
	"github.com/upweb-network/monitor-engine/infrastructure/logging"
	"github.com/upweb-network/monitor-engine/infrastructure/logging/hotpath"
	"github.com/upweb-network/monitor-engine/infrastructure/metrics"
	"github.com/upweb-network/monitor-engine/infrastructure/pubsub"
	"github.com/upweb-network/monitor-engine/infrastructure/ratelimit"
	"github.com/upweb-network/monitor-engine/infrastructure/selfstats"
	"github.com/upweb-network/monitor-engine/infrastructure/telemetry"
	"github.com/upweb-network/monitor-engine/ports"
)

// storeSet bundles every port backed by one persistence choice, so main
// only branches on postgres-vs-memory once.
type storeSet struct {
	targets   ports.TargetStore
	checks    ports.CheckStore
	incidents ports.IncidentStore
	wallets   ports.WalletStore
	cooldowns ports.CooldownStore
	rollups   ports.RollupStore
	snapshot  ports.TargetSnapshotSource
	closeFn   func()
}

func main() {
	cfg := config.FromEnv()
	logger := logging.NewFromEnv("monitor-engine")

	tp, err := telemetry.NewProvider("monitor-engine", os.Stderr)
	if err != nil {
		logger.WithField("error", err.Error()).Warn("telemetry disabled: falling back to no-op tracer")
		tp = telemetry.NewNoop()
	}
	defer tp.Shutdown(context.Background())

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	redisClient := pubsub.New(cfg.RedisAddr, "monitor")
	defer redisClient.Close()
	pushHub := pubsub.NewPushHub(redisClient)

	stores, err := openStores(cfg, logger, redisClient)
	if err != nil {
		logger.WithField("error", err.Error()).Error("failed to initialize persistence")
		os.Exit(1)
	}
	defer stores.closeFn()

	registry := executor.NewDefaultRegistry()

	notif := notifier.New(notifier.NewNoopEmailSender(logger), pushHub, m, logger)

	paymentDispatcher := payment.New(stores.wallets, stores.checks, cfg.PaymentPerCheckMinorUnits,
		payment.NewLogAlerter(logger), m, logger)

	hotLog := hotpath.New()
	defer hotLog.Sync()

	proc := processor.New(processor.Config{Shards: cfg.ProcessorShards}, stores.targets, stores.checks,
		stores.incidents, notif, paymentDispatcher, m, logger).WithTracer(tp.Tracer()).WithHotLogger(hotLog)

	schedulerCfg := scheduler.Config{ExecutorConcurrency: cfg.ExecutorConcurrency}
	sched := scheduler.New(schedulerCfg, stores.snapshot, registry, proc, m, logger).WithTracer(tp.Tracer()).WithHotLogger(hotLog)

	if active, err := stores.targets.ListActiveTargets(context.Background()); err == nil {
		ids := make([]string, len(active))
		for i, t := range active {
			ids[i] = t.ID
		}
		proc.Hydrate(context.Background(), ids)
	}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	gateway := submission.New(submission.Config{Cooldown: cfg.Cooldown()}, stores.targets, stores.cooldowns,
		registry, proc, limiter)

	statsView := stats.New(stores.targets, stores.checks, stores.incidents, stores.rollups)
	rollupJob := stats.NewRollupJob(stores.targets, stores.checks, stores.rollups, logger)
	if err := rollupJob.Start(); err != nil {
		logger.WithField("error", err.Error()).Error("failed to start rollup job")
	}

	probes := selfstats.NewProbeManager(15 * time.Second)

	router := mux.NewRouter()
	notifier.NewHub(pushHub, logger).Register(router)

	ginEngine := httpapi.New(httpapi.Config{ReleaseMode: true}, gateway, statsView, probes, m, logger)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	router.PathPrefix("/").Handler(ginEngine)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	go sched.Run(runCtx)

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("monitor-engine listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithField("error", err.Error()).Error("http server failed")
		}
	}()

	probes.SetReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	probes.SetReady(false)
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err.Error()).Error("http server shutdown error")
	}

	cancelRun()
	sched.Stop()
	proc.Close()
	notif.Close(shutdownCtx)
	rollupJob.Stop()

	logger.Info("shutdown complete")
}

// openStores builds every storage port from cfg.DatabaseURL: Postgres when
// set, the in-memory store otherwise (spec §6: single-process mode). It
// shares the caller's redis client for the cooldown cache rather than
// opening a second connection.
func openStores(cfg config.Config, logger *logging.Logger, redisClient *pubsub.Client) (*storeSet, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("MONITOR_DATABASE_URL not set: running against the in-memory store")
		mem := database.NewMemoryStore()
		return &storeSet{
			targets: mem, checks: mem, incidents: mem, wallets: mem,
			cooldowns: mem, rollups: mem,
			snapshot: scheduler.NewCachedSnapshot(mem, 0),
			closeFn:  func() {},
		}, nil
	}

	db, err := database.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := migrations.Apply(db.DB); err != nil {
		db.Close()
		return nil, err
	}

	targets := database.NewPostgresTargetStore(db)
	checks := database.NewPostgresCheckStore(db)
	incidents := database.NewPostgresIncidentStore(db)
	wallets := database.NewPostgresWalletStore(db)
	cooldowns := database.NewPostgresCooldownStore(db)
	rollups := database.NewPostgresRollupStore(db)

	cooldownCache := pubsub.NewCooldownCache(redisClient, 0)

	return &storeSet{
		targets: targets, checks: checks, incidents: incidents, wallets: wallets,
		cooldowns: pubsub.NewCachedCooldownStore(cooldowns, cooldownCache),
		rollups:   rollups,
		snapshot:  scheduler.NewCachedSnapshot(targets, 0),
		closeFn:   func() { db.Close() },
	}, nil
}
