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

var paymentProfile = profile{
	agentID:     "payment-sys-001",
	name:        "Payment Systems Agent",
	description: "Handles payment processing, transaction analysis, and gateway issues",
	version:     "3.2.1",
	homepage:    "https://relayforge.dev/agents/payment-systems",
	port:        "8002",
	skills: []agent.SkillSpec{
		{
			Name:        "transaction-analysis",
			Description: "Analyze failed transactions and identify root causes",
			InputSchema: objectSchema(map[string]string{
				"transaction_id": "string",
				"customer_id":    "string",
				"amount":         "number",
			}),
			OutputSchema: objectSchema(map[string]string{
				"failure_reason":    "string",
				"gateway_status":    "string",
				"retry_recommended": "boolean",
				"analysis_report":   "object",
			}),
		},
		{
			Name:        "payment-retry",
			Description: "Attempt payment retry with optimized parameters",
			InputSchema: objectSchema(map[string]string{
				"original_transaction_id": "string",
				"retry_strategy":          "string",
			}),
		},
	},
	handlers: func(step time.Duration) map[task.Skill]service.Handler {
		return map[task.Skill]service.Handler{
			"transaction-analysis": analyzeTransaction(step),
			"payment-retry":        retryPayment(step),
		}
	},
}

type failureScenario struct {
	reason     string
	gateway    string
	retry      bool
	confidence float64
	strategy   string
	factors    []string
}

var failureScenarios = map[string]failureScenario{
	"3ds_timeout": {
		reason: "3DS verification timeout", gateway: "timeout", retry: true, confidence: 0.94,
		strategy: "bypass_3ds_for_verified_corporate",
		factors:  []string{"high_traffic_volume", "issuing_bank_response_delay"},
	},
	"insufficient_funds": {
		reason: "Insufficient funds", gateway: "declined", retry: false, confidence: 0.99,
		strategy: "request_alternative_payment_method",
		factors:  []string{"account_balance_insufficient", "hold_on_account"},
	},
	"network_timeout": {
		reason: "Network gateway timeout", gateway: "timeout", retry: true, confidence: 0.87,
		strategy: "retry_with_backoff",
		factors:  []string{"high_latency", "packet_loss", "gateway_overload"},
	},
	"card_declined": {
		reason: "Card declined by issuer", gateway: "declined", retry: false, confidence: 0.95,
		strategy: "contact_card_issuer",
		factors:  []string{"fraud_detection_triggered", "card_limit_exceeded"},
	},
}

// classifyFailure maps the reported failure onto a known scenario.
// Unrecognized failures are treated as 3DS timeouts.
func classifyFailure(input map[string]any) string {
	raw := strings.ToLower(stringAt(input, "",
		"failure_details.error_code", "failure_details.error", "failure_details.failure_type", "failure_reason"))
	switch {
	case strings.Contains(raw, "insufficient"):
		return "insufficient_funds"
	case strings.Contains(raw, "declin"), strings.Contains(raw, "card"):
		return "card_declined"
	case strings.Contains(raw, "network"), strings.Contains(raw, "gateway"):
		return "network_timeout"
	}
	return "3ds_timeout"
}

func analyzeTransaction(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		txn := stringAt(t.Context, "TXN-456789", "transaction_id", "failure_details.transaction_id")
		amount := numberAt(t.Context, 49999.99, "amount", "order.amount", "order.total")

		p.SendProgress(25, "Retrieving transaction logs from gateway...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		p.SendProgress(50, "Analyzing gateway timeout patterns...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}

		name := classifyFailure(t.Context)
		sc := failureScenarios[name]
		p.SendInsight(map[string]any{"root_cause": name, "confidence": sc.confidence}, "Detected: "+sc.reason)
		p.SendProgress(75, "Root cause identified: "+sc.reason, nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}

		failureCode := "DECLINED"
		if strings.Contains(name, "timeout") {
			failureCode = "GATEWAY_TIMEOUT"
		}
		expected := 0.15
		if sc.retry {
			expected = 0.97
		}
		report := map[string]any{
			"artifact_id": "payment-analysis-" + t.ID,
			"task_id":     t.ID,
			"type":        "analysis_report",
			"format":      "application/json",
			"created_at":  time.Now().UTC(),
			"data": map[string]any{
				"transaction_id":  txn,
				"original_amount": amount,
				"currency":        "USD",
				"failure_reason":  sc.reason,
				"failure_code":    failureCode,
				"root_cause": map[string]any{
					"primary":              name,
					"contributing_factors": sc.factors,
					"confidence":           sc.confidence,
				},
				"resolution_strategy": map[string]any{
					"recommended_action":    sc.strategy,
					"expected_success_rate": expected,
				},
			},
		}
		p.SendArtifact(task.Artifact{
			"type":   "analysis_report",
			"url":    fmt.Sprintf("/artifacts/payment-analysis-%s.json", t.ID),
			"format": "application/json",
		}, "Payment analysis report generated")
		p.SendProgress(90, "Analysis report generated", nil)

		return map[string]any{
			"retry_recommended": sc.retry,
			"strategy":          sc.strategy,
			"confidence":        sc.confidence,
			"root_cause":        name,
			"failure_reason":    sc.reason,
			"gateway_status":    sc.gateway,
			"analysis_report":   report,
		}, nil
	}
}

func retryPayment(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		original := stringAt(t.Context, "TXN-456789", "original_transaction_id", "transaction_id")
		strategy := stringAt(t.Context, "standard", "retry_strategy", "strategy")

		p.SendProgress(30, "Preparing retry with optimized parameters...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		p.SendProgress(60, "Executing payment retry...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}

		// Retryable failures succeed, as does an explicit 3DS bypass.
		if failureScenarios[classifyFailure(t.Context)].retry || strategy == failureScenarios["3ds_timeout"].strategy {
			p.SendProgress(100, "Payment retry successful!", nil)
			return map[string]any{
				"status":              "success",
				"new_transaction_id":  fmt.Sprintf("TXN-%d", code(original+strategy)),
				"amount_charged":      numberAt(t.Context, 49999.99, "amount", "order.amount"),
				"retry_strategy_used": strategy,
			}, nil
		}
		p.SendProgress(100, "Payment retry failed - escalating to manual review", nil)
		return map[string]any{
			"status":              "failed",
			"retry_strategy_used": strategy,
			"escalation_required": true,
		}, nil
	}
}
