package fleet

import (
	"context"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/service"
)

var techProfile = profile{
	agentID:     "tech-support-001",
	name:        "Tech Support Agent",
	description: "System diagnostics, performance analysis, and infrastructure optimization",
	version:     "3.4.2",
	homepage:    "https://relayforge.dev/agents/tech-support",
	port:        "8005",
	modalities:  []string{"text", "structured_data", "logs", "metrics"},
	skills: []agent.SkillSpec{
		{
			Name:        "system-diagnostics",
			Description: "Analyze system performance and identify bottlenecks",
			InputSchema: objectSchema(map[string]string{
				"incident_type":     "string",
				"system_components": "array",
			}),
		},
		{
			Name:        "performance-optimization",
			Description: "Optimize system performance and recommend improvements",
			InputSchema: objectSchema(map[string]string{"optimization_target": "string"}),
		},
	},
	handlers: func(step time.Duration) map[task.Skill]service.Handler {
		return map[task.Skill]service.Handler{
			"system-diagnostics":       diagnoseSystem(step),
			"performance-optimization": optimizePerformance(step),
		}
	},
}

func diagnoseSystem(step time.Duration) service.Handler {
	return func(ctx context.Context, _ task.Task, p *service.Progress) (map[string]any, error) {
		p.SendProgress(35, "Analyzing gateway performance metrics...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		p.SendProgress(70, "Identified high latency in 3DS verification service", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		return map[string]any{
			"diagnosis":  "3DS authentication service experiencing high latency",
			"root_cause": "Gateway timeout due to external service delays",
			"severity":   "high",
			"confidence": 0.88,
			"recommendations": []string{
				"Implement circuit breaker pattern",
				"Add timeout optimizations",
				"Enable request queuing",
			},
		}, nil
	}
}

func optimizePerformance(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		target := stringAt(t.Context, "response_time", "optimization_target")
		p.SendProgress(60, "Generating optimization recommendations...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		return map[string]any{
			"optimization_target": target,
			"recommendations": []string{
				"Enable caching layer",
				"Optimize database indexes",
				"Implement connection pooling",
			},
			"expected_improvement": "30-50% performance gain",
		}, nil
	}
}
