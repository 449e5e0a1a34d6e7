package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "relayforge.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RELAYFORGE_PORT")
	setString(&cfg.Server.CORSOrigin, "RELAYFORGE_CORS_ORIGIN")
	setString(&cfg.Server.PublicURL, "RELAYFORGE_PUBLIC_URL")

	// Registry
	setString(&cfg.Registry.URL, "RELAYFORGE_REGISTRY_URL")
	setDuration(&cfg.Registry.HealthTimeout, "RELAYFORGE_REGISTRY_HEALTH_TIMEOUT")

	// Agent
	setString(&cfg.Agent.Kind, "RELAYFORGE_AGENT_KIND")
	setString(&cfg.Agent.AgentID, "RELAYFORGE_AGENT_ID")
	setDuration(&cfg.Agent.TaskTimeout, "RELAYFORGE_AGENT_TASK_TIMEOUT")
	setBool(&cfg.Agent.RegisterOnStart, "RELAYFORGE_AGENT_REGISTER")
	setDuration(&cfg.Agent.RegisterDelay, "RELAYFORGE_AGENT_REGISTER_DELAY")

	// Stream
	setDuration(&cfg.Stream.Keepalive, "RELAYFORGE_STREAM_KEEPALIVE")
	setInt(&cfg.Stream.SubscriberBuffer, "RELAYFORGE_STREAM_BUFFER")

	// Discovery
	setDuration(&cfg.Discovery.CacheTTL, "RELAYFORGE_DISCOVERY_CACHE_TTL")
	setDuration(&cfg.Discovery.HTTPTimeout, "RELAYFORGE_DISCOVERY_HTTP_TIMEOUT")
	setInt(&cfg.Discovery.L1MaxSizeMB, "RELAYFORGE_DISCOVERY_L1_SIZE_MB")
	setString(&cfg.Discovery.L2Bucket, "RELAYFORGE_DISCOVERY_L2_BUCKET")

	// Invocation
	setDuration(&cfg.Invocation.RequestTimeout, "RELAYFORGE_INVOKE_REQUEST_TIMEOUT")
	setDuration(&cfg.Invocation.PollInterval, "RELAYFORGE_INVOKE_POLL_INTERVAL")
	setDuration(&cfg.Invocation.MaxWait, "RELAYFORGE_INVOKE_MAX_WAIT")

	// Traffic
	setInt(&cfg.Traffic.Capacity, "RELAYFORGE_TRAFFIC_CAPACITY")
	setInt(&cfg.Traffic.SubscriberBuffer, "RELAYFORGE_TRAFFIC_BUFFER")
	setInt(&cfg.Traffic.RecentDefault, "RELAYFORGE_TRAFFIC_RECENT_DEFAULT")

	// Orchestrator
	setString(&cfg.Orchestrator.AgentID, "RELAYFORGE_ORCH_AGENT_ID")
	setInt(&cfg.Orchestrator.MaxParallel, "RELAYFORGE_ORCH_MAX_PARALLEL")
	setDuration(&cfg.Orchestrator.IncidentTimeout, "RELAYFORGE_ORCH_INCIDENT_TIMEOUT")

	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.URL, "RELAYFORGE_NATS_URL")

	setString(&cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.OTEL.Endpoint, "RELAYFORGE_OTEL_ENDPOINT")
	setString(&cfg.OTEL.ServiceName, "RELAYFORGE_OTEL_SERVICE_NAME")
	setBool(&cfg.OTEL.Insecure, "RELAYFORGE_OTEL_INSECURE")

	setString(&cfg.Logging.Level, "RELAYFORGE_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RELAYFORGE_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RELAYFORGE_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "RELAYFORGE_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RELAYFORGE_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "RELAYFORGE_RATE_RPS")
	setInt(&cfg.Rate.Burst, "RELAYFORGE_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "RELAYFORGE_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "RELAYFORGE_RATE_MAX_IDLE_TIME")
}

// Validate checks that cfg is usable. Commands call it again after applying
// flag overrides.
func Validate(cfg *Config) error {
	switch {
	case cfg.Registry.URL == "":
		return errors.New("registry.url is required")
	case cfg.Agent.TaskTimeout <= 0:
		return errors.New("agent.task_timeout must be > 0")
	case cfg.Stream.Keepalive <= 0:
		return errors.New("stream.keepalive must be > 0")
	case cfg.Stream.SubscriberBuffer < 1:
		return errors.New("stream.subscriber_buffer must be >= 1")
	case cfg.Discovery.CacheTTL <= 0:
		return errors.New("discovery.cache_ttl must be > 0")
	case cfg.Invocation.RequestTimeout <= 0:
		return errors.New("invocation.request_timeout must be > 0")
	case cfg.Invocation.PollInterval <= 0:
		return errors.New("invocation.poll_interval must be > 0")
	case cfg.Invocation.MaxWait < cfg.Invocation.PollInterval:
		return errors.New("invocation.max_wait must be >= invocation.poll_interval")
	case cfg.Traffic.Capacity < 1:
		return errors.New("traffic.capacity must be >= 1")
	case cfg.Traffic.SubscriberBuffer < 1:
		return errors.New("traffic.subscriber_buffer must be >= 1")
	case cfg.Orchestrator.IncidentTimeout <= 0:
		return errors.New("orchestrator.incident_timeout must be > 0")
	case cfg.Orchestrator.MaxParallel < 1:
		return errors.New("orchestrator.max_parallel must be >= 1")
	case cfg.Breaker.MaxFailures < 1:
		return errors.New("breaker.max_failures must be >= 1")
	case cfg.Rate.Burst < 1:
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
