// Package config provides hierarchical configuration loading for RelayForge.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for a RelayForge process. One
// binary serves every role, so each role reads only the sections it needs.
type Config struct {
	Server       Server       `yaml:"server"`
	Registry     Registry     `yaml:"registry"`
	Agent        Agent        `yaml:"agent"`
	Stream       Stream       `yaml:"stream"`
	Discovery    Discovery    `yaml:"discovery"`
	Invocation   Invocation   `yaml:"invocation"`
	Traffic      Traffic      `yaml:"traffic"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	NATS         NATS         `yaml:"nats"`
	OTEL         OTEL         `yaml:"otel"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Rate         Rate         `yaml:"rate"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`        // Empty selects the role's default port
	CORSOrigin string `yaml:"cors_origin"` // Allowed origin for dashboards
	PublicURL  string `yaml:"public_url"`  // Base URL advertised to peers; empty derives http://localhost:{port}
}

// Registry holds the registry address and its health probe budget.
type Registry struct {
	URL           string        `yaml:"url"`
	HealthTimeout time.Duration `yaml:"health_timeout"`
}

// Agent holds configuration for an agent process.
type Agent struct {
	Kind            string        `yaml:"kind"`     // payment | fraud | order | tech | support
	AgentID         string        `yaml:"agent_id"` // Empty uses the kind's catalog id
	TaskTimeout     time.Duration `yaml:"task_timeout"`
	RegisterOnStart bool          `yaml:"register_on_start"`
	RegisterDelay   time.Duration `yaml:"register_delay"`
}

// Stream holds per-task event stream configuration.
type Stream struct {
	Keepalive        time.Duration `yaml:"keepalive"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
}

// Discovery holds discovery cache configuration.
type Discovery struct {
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	L1MaxSizeMB int           `yaml:"l1_max_size_mb"`
	L2Bucket    string        `yaml:"l2_bucket"` // NATS KV bucket shared across orchestrators; used only with NATS
}

// Invocation holds remote skill invocation configuration.
type Invocation struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxWait        time.Duration `yaml:"max_wait"`
}

// Traffic holds traffic monitor configuration.
type Traffic struct {
	Capacity         int `yaml:"capacity"`
	SubscriberBuffer int `yaml:"subscriber_buffer"`
	RecentDefault    int `yaml:"recent_default"`
}

// Orchestrator holds incident coordination configuration.
type Orchestrator struct {
	AgentID         string        `yaml:"agent_id"`
	MaxParallel     int           `yaml:"max_parallel"`
	IncidentTimeout time.Duration `yaml:"incident_timeout"`
}

// NATS holds NATS JetStream configuration. An empty URL disables the
// traffic mirror and the shared discovery cache.
type NATS struct {
	URL string `yaml:"url"`
}

// OTEL holds OpenTelemetry export configuration. An empty endpoint keeps
// telemetry in-process (Prometheus scrape only).
type OTEL struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds per-agent circuit breaker configuration.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Rate holds rate limiter configuration.
type Rate struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	MaxIdleTime       time.Duration `yaml:"max_idle_time"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			CORSOrigin: "*",
		},
		Registry: Registry{
			URL:           "http://localhost:8000",
			HealthTimeout: 5 * time.Second,
		},
		Agent: Agent{
			TaskTimeout:     5 * time.Minute,
			RegisterOnStart: true,
			RegisterDelay:   2 * time.Second,
		},
		Stream: Stream{
			Keepalive:        30 * time.Second,
			SubscriberBuffer: 64,
		},
		Discovery: Discovery{
			CacheTTL:    300 * time.Second,
			HTTPTimeout: 10 * time.Second,
			L1MaxSizeMB: 16,
			L2Bucket:    "relayforge-discovery",
		},
		Invocation: Invocation{
			RequestTimeout: 30 * time.Second,
			PollInterval:   2 * time.Second,
			MaxWait:        120 * time.Second,
		},
		Traffic: Traffic{
			Capacity:         1000,
			SubscriberBuffer: 100,
			RecentDefault:    100,
		},
		Orchestrator: Orchestrator{
			AgentID:         "orchestrator",
			MaxParallel:     4,
			IncidentTimeout: 10 * time.Minute,
		},
		OTEL: OTEL{
			ServiceName: "relayforge",
			Insecure:    true,
		},
		Logging: Logging{
			Level:   "info",
			Service: "relayforge",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Rate: Rate{
			RequestsPerSecond: 10,
			Burst:             100,
			CleanupInterval:   5 * time.Minute,
			MaxIdleTime:       10 * time.Minute,
		},
	}
}

// ResolvePort returns the configured port or fallback when none is set.
func (s *Server) ResolvePort(fallback string) string {
	if s.Port != "" {
		return s.Port
	}
	return fallback
}

// BaseURL returns the URL peers should use to reach this process.
func (s *Server) BaseURL(port string) string {
	if s.PublicURL != "" {
		return s.PublicURL
	}
	return "http://localhost:" + port
}
