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

var fraudProfile = profile{
	agentID:     "fraud-detect-001",
	name:        "Fraud Detection Agent",
	description: "Real-time fraud analysis and risk assessment",
	version:     "2.1.0",
	homepage:    "https://relayforge.dev/agents/fraud-detection",
	port:        "8003",
	modalities:  []string{"text", "structured_data", "images"},
	skills: []agent.SkillSpec{
		{
			Name:        "risk-assessment",
			Description: "Evaluate transaction risk and customer legitimacy",
			InputSchema: objectSchema(map[string]string{
				"customer_id":        "string",
				"transaction_amount": "number",
			}),
			OutputSchema: objectSchema(map[string]string{
				"risk_score":     "number",
				"risk_level":     "string",
				"recommendation": "string",
			}),
		},
		{
			Name:        "customer-verification",
			Description: "Verify customer identity and payment method",
			InputSchema: objectSchema(map[string]string{
				"customer_id":       "string",
				"verification_type": "string",
			}),
		},
	},
	handlers: func(step time.Duration) map[task.Skill]service.Handler {
		return map[task.Skill]service.Handler{
			"risk-assessment":       assessRisk(step),
			"customer-verification": verifyCustomer(step),
		}
	},
}

type customerProfile struct {
	EstablishedSince string  `json:"established_since"`
	AccountValue     float64 `json:"account_value"`
	PaymentHistory   string  `json:"payment_history"`
	Verification     string  `json:"verification_status"`
	PreviousIncident int     `json:"previous_incidents"`
	baseRisk         float64
}

const unknownCustomer = "NEW-11111"

var customerProfiles = map[string]customerProfile{
	"CORP-12345": {
		EstablishedSince: "2019", AccountValue: 2500000, PaymentHistory: "excellent",
		Verification: "verified", baseRisk: 0.15,
	},
	"RETAIL-67890": {
		EstablishedSince: "2023", AccountValue: 15000, PaymentHistory: "good",
		Verification: "pending", PreviousIncident: 1, baseRisk: 0.45,
	},
	unknownCustomer: {
		EstablishedSince: "2024", PaymentHistory: "none",
		Verification: "unverified", baseRisk: 0.75,
	},
}

// Risk modifiers applied on top of a customer's base score.
var riskModifiers = map[string]float64{
	"high_transaction_amount": 0.1,
	"new_payment_method":      0.15,
	"device_fingerprint":      -0.1,
	"verified_corporate_card": -0.2,
}

const highAmountThreshold = 25000

func customerFor(input map[string]any) (string, customerProfile) {
	id := stringAt(input, unknownCustomer, "customer_id", "customer.id", "customer.customer_id")
	if p, ok := customerProfiles[id]; ok {
		return id, p
	}
	return id, customerProfiles[unknownCustomer]
}

// riskFactors returns the modifiers that apply, in a fixed order.
func riskFactors(c *customerProfile, amount float64) []string {
	var factors []string
	if amount > highAmountThreshold {
		factors = append(factors, "high_transaction_amount")
	}
	if c.AccountValue > 100000 {
		factors = append(factors, "verified_corporate_card", "device_fingerprint")
	}
	if c.EstablishedSince == "2024" {
		factors = append(factors, "new_payment_method")
	}
	return factors
}

func riskLevel(score float64) string {
	switch {
	case score < 0.3:
		return "LOW"
	case score < 0.7:
		return "MEDIUM"
	}
	return "HIGH"
}

func recommendation(score float64) string {
	switch {
	case score < 0.5:
		return "approve"
	case score < 0.8:
		return "review"
	}
	return "decline"
}

func assessRisk(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		id, customer := customerFor(t.Context)
		amount := numberAt(t.Context, 49999.99, "transaction_amount", "order.amount", "order.total")

		p.SendProgress(30, "Verifying customer identity and transaction history...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}
		p.SendProgress(60, "Analyzing payment patterns and behavioral signals...", nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}

		factors := riskFactors(&customer, amount)
		score := customer.baseRisk
		var negative []string
		for _, f := range factors {
			score += riskModifiers[f]
			if riskModifiers[f] > 0 {
				negative = append(negative, f)
			}
		}
		score = min(max(score, 0), 1)

		level := riskLevel(score)
		rec := recommendation(score)
		confidence := 0.85
		if customer.Verification == "verified" {
			confidence = 0.97
		}
		p.SendProgress(85, fmt.Sprintf("%s risk detected. Customer verified as %s.",
			strings.ToUpper(level[:1])+strings.ToLower(level[1:]), customer.Verification), nil)

		p.SendArtifact(task.Artifact{
			"type":   "risk_assessment",
			"url":    fmt.Sprintf("/artifacts/fraud-assessment-%s.json", t.ID),
			"format": "application/json",
		}, "Risk assessment report generated")
		p.SendInsight(map[string]any{
			"risk_score":  score,
			"confidence":  confidence,
			"key_factors": factors[:min(3, len(factors))],
		}, fmt.Sprintf("Risk analysis complete: %s risk with %d%% confidence", level, int(confidence*100)))

		return map[string]any{
			"customer_id":      id,
			"risk_score":       score,
			"risk_level":       level,
			"recommendation":   rec,
			"confidence":       confidence,
			"negative_signals": negative,
			"customer_profile": customer,
		}, nil
	}
}

func verifyCustomer(step time.Duration) service.Handler {
	return func(ctx context.Context, t task.Task, p *service.Progress) (map[string]any, error) {
		_, customer := customerFor(t.Context)
		kind := stringAt(t.Context, "identity", "verification_type")

		p.SendProgress(50, fmt.Sprintf("Performing %s verification...", kind), nil)
		if err := pause(ctx, step); err != nil {
			return nil, err
		}

		status, confidence := "failed", 0.3
		if customer.Verification == "verified" {
			status, confidence = "verified", 0.95
		}
		return map[string]any{
			"verification_status": status,
			"verification_type":   kind,
			"confidence":          confidence,
			"details":             customer,
		}, nil
	}
}
