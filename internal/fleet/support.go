package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/service"
)

var supportProfile = profile{
	agentID:     "customer-support-001",
	name:        "Customer Support Agent",
	description: "Customer impact triage and communication for incidents without a dedicated plan",
	version:     "1.0.0",
	homepage:    "https://relayforge.dev/agents/customer-support",
	port:        "8006",
	skills: []agent.SkillSpec{
		{
			Name:        "general-support",
			Description: "Triage customer impact and propose next steps",
			InputSchema: objectSchema(map[string]string{
				"incident_id": "string",
				"customer":    "object",
			}),
		},
	},
	handlers: func(step time.Duration) map[task.Skill]service.Handler {
		return map[task.Skill]service.Handler{"general-support": triage(step)}
	},
}

var priorityTiers = map[string]string{
	"enterprise": "high",
	"platinum":   "high",
	"gold":       "medium",
}

func triage(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		tier := strings.ToLower(stringAt(t.Context, "standard", "customer.tier", "customer.segment"))
		priority, ok := priorityTiers[tier]
		if !ok {
			priority = "normal"
		}

		p.SendProgress(50, "Reviewing customer impact...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		p.SendInsight(map[string]any{"priority": priority, "tier": tier}, "Customer impact assessed")

		return map[string]any{
			"ticket_id":  fmt.Sprintf("SUP-%d", code(t.ID)),
			"priority":   priority,
			"confidence": 0.8,
			"next_steps": []string{
				"Notify customer of the incident",
				"Monitor for follow-up failures",
			},
		}, nil
	}
}
