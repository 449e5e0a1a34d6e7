package main

import (
	"context"

	"github.com/spf13/cobra"

	a2ahttp "github.com/Strob0t/RelayForge/internal/adapter/a2a"
	rfhttp "github.com/Strob0t/RelayForge/internal/adapter/http"
	"github.com/Strob0t/RelayForge/internal/fleet"
	"github.com/Strob0t/RelayForge/internal/middleware"
	"github.com/Strob0t/RelayForge/internal/service"
)

func newRegistryCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Run the agent registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			p, err := start(ctx, opts, "registry", fleet.RegistryPort)
			if err != nil {
				return err
			}
			defer p.stop()
			cfg := p.cfg

			prober := a2ahttp.NewClient(cfg.Registry.URL, cfg.Registry.HealthTimeout)
			registry := service.NewRegistryService(prober, &cfg.Registry)

			limiter := newRateLimiter(ctx, p)
			r := rfhttp.NewRouter(rfhttp.RouterOptions{
				ServiceName: p.serviceName("registry"),
				CORSOrigin:  cfg.Server.CORSOrigin,
				Metrics:     p.telemetry.Handler(),
			})
			rfhttp.MountRegistryRoutes(r, &rfhttp.RegistryHandlers{Registry: registry}, limiter.Handler)

			return serve(ctx, ":"+p.port, r)
		},
	}
}

// newRateLimiter builds the per-client limiter guarding mutating routes and
// starts its idle-bucket cleanup.
func newRateLimiter(ctx context.Context, p *process) *middleware.RateLimiter {
	rate := p.cfg.Rate
	limiter := middleware.NewRateLimiter(rate.RequestsPerSecond, rate.Burst,
		middleware.WithRejectHook(func(string) { p.metrics.RateLimit(ctx) }))
	limiter.StartCleanup(ctx, rate.CleanupInterval, rate.MaxIdleTime)
	return limiter
}
