package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/service"
)

var orderProfile = profile{
	agentID:     "order-mgmt-001",
	name:        "Order Management Agent",
	description: "Inventory management, order processing, and fulfillment coordination",
	version:     "2.8.3",
	homepage:    "https://relayforge.dev/agents/order-management",
	port:        "8004",
	skills: []agent.SkillSpec{
		{
			Name:        "inventory-hold",
			Description: "Reserve inventory for specified duration",
			InputSchema: objectSchema(map[string]string{
				"order_id":              "string",
				"items":                 "array",
				"hold_duration_minutes": "integer",
			}),
		},
		{
			Name:        "expedited-processing",
			Description: "Enable expedited order processing and shipping",
			InputSchema: objectSchema(map[string]string{
				"order_id":       "string",
				"expedite_level": "string",
			}),
		},
	},
	handlers: func(step time.Duration) map[task.Skill]service.Handler {
		return map[task.Skill]service.Handler{
			"inventory-hold":       holdInventory(step),
			"expedited-processing": expediteOrder(step),
		}
	},
}

const defaultHoldMinutes = 45

func holdInventory(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		orderID := stringAt(t.Context, "ORD-789123", "order_id", "order.id", "order.order_id")
		minutes := int(numberAt(t.Context, defaultHoldMinutes, "hold_duration_minutes"))

		p.SendProgress(40, "Checking inventory availability...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		p.SendProgress(80, fmt.Sprintf("Inventory reserved for %d minutes", minutes), nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}

		return map[string]any{
			"hold_id":            fmt.Sprintf("HOLD-%d", code(orderID+t.ID)),
			"order_id":           orderID,
			"expires_at":         time.Now().UTC().Add(time.Duration(minutes) * time.Minute),
			"expedited_shipping": true,
			"confidence":         0.92,
		}, nil
	}
}

func expediteOrder(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		level := stringAt(t.Context, "express", "expedite_level")

		p.SendProgress(60, fmt.Sprintf("Enabling %s processing...", level), nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		return map[string]any{
			"expedite_level":     level,
			"estimated_delivery": time.Now().UTC().AddDate(0, 0, 2),
			"additional_cost":    299,
		}, nil
	}
}
