package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	a2ahttp "github.com/Strob0t/RelayForge/internal/adapter/a2a"
	rfhttp "github.com/Strob0t/RelayForge/internal/adapter/http"
	rfnats "github.com/Strob0t/RelayForge/internal/adapter/nats"
	"github.com/Strob0t/RelayForge/internal/adapter/natskv"
	"github.com/Strob0t/RelayForge/internal/adapter/ristretto"
	"github.com/Strob0t/RelayForge/internal/adapter/tiered"
	"github.com/Strob0t/RelayForge/internal/adapter/ws"
	"github.com/Strob0t/RelayForge/internal/fleet"
	"github.com/Strob0t/RelayForge/internal/middleware"
	"github.com/Strob0t/RelayForge/internal/port/cache"
	"github.com/Strob0t/RelayForge/internal/resilience"
	"github.com/Strob0t/RelayForge/internal/service"
)

// idempotencyTTL bounds how long POST /incidents responses are replayable.
const idempotencyTTL = 24 * time.Hour

func newOrchestratorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrator",
		Short: "Run the incident orchestrator and traffic monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOrchestrator(cmd.Context(), opts)
		},
	}
}

func runOrchestrator(ctx context.Context, opts *rootOptions) error {
	p, err := start(ctx, opts, "orchestrator", fleet.OrchestratorPort)
	if err != nil {
		return err
	}
	defer p.stop()
	cfg := p.cfg

	// --- Infrastructure ---

	l1, err := ristretto.New(cfg.Discovery.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()

	var discoveryCache cache.Cache = l1
	var queue *rfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = rfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()

		kv, err := queue.KeyValue(ctx, cfg.Discovery.L2Bucket, cfg.Discovery.CacheTTL)
		if err != nil {
			return err
		}
		discoveryCache = tiered.New(l1, natskv.New(kv), cfg.Discovery.CacheTTL)
		slog.Info("nats connected", "discovery_bucket", cfg.Discovery.L2Bucket)
	}

	// --- Services ---

	client := a2ahttp.NewClient(cfg.Registry.URL, cfg.Discovery.HTTPTimeout)
	discovery := service.NewDiscoveryService(client, discoveryCache, &cfg.Discovery)

	monitor := service.NewTrafficMonitor(cfg.Orchestrator.AgentID, &cfg.Traffic, p.metrics)
	if queue != nil {
		if err := service.NewTrafficMirror(queue, monitor).Start(ctx); err != nil {
			return err
		}
	}

	hub := ws.NewHub(cfg.Traffic.SubscriberBuffer)
	go service.PumpTraffic(ctx, monitor, hub)

	breakers := resilience.NewBreakers(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout, service.CountsTransportFailure)
	invoker := service.NewInvocationService(cfg.Orchestrator.AgentID, discovery, client, monitor, breakers, &cfg.Invocation, p.metrics)
	orchestrator := service.NewOrchestratorService(discovery, invoker, hub, &cfg.Orchestrator, p.metrics)

	// --- HTTP ---

	r := rfhttp.NewRouter(rfhttp.RouterOptions{
		ServiceName: p.serviceName("orchestrator"),
		CORSOrigin:  cfg.Server.CORSOrigin,
		Metrics:     p.telemetry.Handler(),
	})
	rfhttp.MountOrchestratorRoutes(r, &rfhttp.OrchestratorHandlers{
		Orchestrator:  orchestrator,
		Traffic:       monitor,
		RecentDefault: cfg.Traffic.RecentDefault,
		Keepalive:     cfg.Stream.Keepalive,
		TrafficWS:     hub.HandleWS,
	}, newRateLimiter(ctx, p).Handler, middleware.Idempotency(l1, idempotencyTTL))

	serveErr := serve(ctx, ":"+p.port, r)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		slog.Warn("incidents still running at shutdown", "error", err)
	}
	if queue != nil {
		if err := queue.Drain(); err != nil {
			slog.Warn("nats drain", "error", err)
		}
	}
	slog.Info("orchestrator stopped",
		"incidents", orchestrator.Count(),
		"traffic_dropped", monitor.Dropped(),
		"ws_dropped", hub.Dropped(),
		"breakers", breakers.States(),
	)
	return serveErr
}
