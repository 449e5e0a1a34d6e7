package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	rfotel "github.com/Strob0t/RelayForge/internal/adapter/otel"
	"github.com/Strob0t/RelayForge/internal/config"
	"github.com/Strob0t/RelayForge/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configFile string
	port       string
	logLevel   string
	registry   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "relayforge",
		Short:         "Agent-to-agent task delegation and incident orchestration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", config.DefaultConfigFile, "YAML config file (optional)")
	flags.StringVar(&opts.port, "port", "", "listen port (default depends on the process)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&opts.registry, "registry-url", "", "registry base URL")

	cmd.AddCommand(
		newRegistryCmd(opts),
		newAgentCmd(opts),
		newOrchestratorCmd(opts),
		newKindsCmd(),
	)
	return cmd
}

// process is the shared runtime of every subcommand: configuration,
// logging and telemetry.
type process struct {
	cfg       *config.Config
	port      string
	metrics   *rfotel.Metrics
	telemetry *rfotel.Provider
	closeLog  logger.Closer
}

// start loads configuration, applies flag overrides and installs logging and
// telemetry for role. defaultPort is used when neither flag nor config set one.
func start(ctx context.Context, opts *rootOptions, role, defaultPort string) (*process, error) {
	cfg, err := config.LoadFrom(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if opts.port != "" {
		cfg.Server.Port = opts.port
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.registry != "" {
		cfg.Registry.URL = opts.registry
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Logging.Service = cfg.Logging.Service + "-" + role
	log, closeLog := logger.New(cfg.Logging)
	slog.SetDefault(log)

	telemetry, err := rfotel.Setup(ctx, rfotel.Options{
		ServiceName: cfg.OTEL.ServiceName + "-" + role,
		Endpoint:    cfg.OTEL.Endpoint,
		Insecure:    cfg.OTEL.Insecure,
	})
	if err != nil {
		closeLog.Close()
		return nil, fmt.Errorf("otel: %w", err)
	}
	metrics, err := rfotel.NewMetrics()
	if err != nil {
		closeLog.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	p := &process{
		cfg:       cfg,
		port:      cfg.Server.ResolvePort(defaultPort),
		metrics:   metrics,
		telemetry: telemetry,
		closeLog:  closeLog,
	}
	slog.Info("config loaded",
		"role", role,
		"port", p.port,
		"log_level", cfg.Logging.Level,
		"registry_url", cfg.Registry.URL,
		"nats", cfg.NATS.URL != "",
	)
	return p, nil
}

// stop flushes telemetry and buffered logs.
func (p *process) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.telemetry.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("telemetry shutdown", "error", err)
	}
	p.closeLog.Close()
}

func (p *process) serviceName(role string) string {
	return p.cfg.OTEL.ServiceName + "-" + role
}
