package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	a2ahttp "github.com/Strob0t/RelayForge/internal/adapter/a2a"
	rfhttp "github.com/Strob0t/RelayForge/internal/adapter/http"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/fleet"
	"github.com/Strob0t/RelayForge/internal/service"
)

func newAgentCmd(opts *rootOptions) *cobra.Command {
	var step time.Duration
	cmd := &cobra.Command{
		Use:       "agent <kind>",
		Short:     "Run a demo agent (" + strings.Join(fleet.Kinds(), ", ") + ")",
		Args:      cobra.ExactArgs(1),
		ValidArgs: fleet.Kinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent(cmd.Context(), opts, args[0], step)
		},
	}
	cmd.Flags().DurationVar(&step, "step", 500*time.Millisecond, "simulated duration of each skill stage")
	return cmd
}

func runAgent(ctx context.Context, opts *rootOptions, kind string, step time.Duration) error {
	port, err := fleet.DefaultPort(kind)
	if err != nil {
		return err
	}
	p, err := start(ctx, opts, kind+"-agent", port)
	if err != nil {
		return err
	}
	defer p.stop()
	cfg := p.cfg

	baseURL := cfg.Server.BaseURL(p.port)
	def, err := fleet.Definition(kind, baseURL, fleet.Options{AgentID: cfg.Agent.AgentID, Step: step})
	if err != nil {
		return err
	}
	broker := service.NewEventBroker(&cfg.Stream)
	runtime, err := service.NewTaskRuntime(def, broker, &cfg.Agent, p.metrics)
	if err != nil {
		return fmt.Errorf("agent %s: %w", kind, err)
	}

	r := rfhttp.NewRouter(rfhttp.RouterOptions{
		ServiceName: p.serviceName(kind + "-agent"),
		CORSOrigin:  cfg.Server.CORSOrigin,
		Metrics:     p.telemetry.Handler(),
	})
	rfhttp.MountAgentRoutes(r, &rfhttp.AgentHandlers{Runtime: runtime})

	client := a2ahttp.NewClient(cfg.Registry.URL, cfg.Discovery.HTTPTimeout)
	reg := agent.Registration{Card: def.Card, HealthCheckURL: baseURL + "/health"}
	if cfg.Agent.RegisterOnStart {
		go registerAfter(ctx, client, &reg, cfg.Agent.RegisterDelay)
	}

	slog.Info("agent ready", "agent_id", def.Card.AgentID, "skills", def.Card.SkillNames(), "base_url", baseURL)
	serveErr := serve(ctx, ":"+p.port, r)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cfg.Agent.RegisterOnStart {
		if err := client.Deregister(shutdownCtx, def.Card.AgentID); err != nil {
			slog.Warn("deregister failed", "agent_id", def.Card.AgentID, "error", err)
		}
	}
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		slog.Warn("tasks still running at shutdown", "error", err)
	}
	return serveErr
}

// registerAfter waits for the listener to come up, then registers the agent.
// A failed registration is logged; the agent keeps serving direct calls.
func registerAfter(ctx context.Context, client *a2ahttp.Client, reg *agent.Registration, delay time.Duration) {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return
	case <-t.C:
	}
	if err := client.Register(ctx, reg); err != nil {
		slog.Warn("registration failed", "agent_id", reg.Card.AgentID, "error", err)
		return
	}
	slog.Info("registered with registry", "agent_id", reg.Card.AgentID)
}

func newKindsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List the demo agent kinds and their default ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, kind := range fleet.Kinds() {
				port, _ := fleet.DefaultPort(kind)
				id, _ := fleet.DefaultAgentID(kind)
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-22s :%s\n", kind, id, port); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
