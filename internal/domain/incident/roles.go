package incident

// TypePaymentFailure is the incident type with a dedicated four-role plan.
const TypePaymentFailure = "payment_failure"

// Role is a logical function within an incident fulfilled by one agent.
type Role struct {
	Name       string
	Skill      string
	TaskPrefix string
	Focus      string
	Brief      string
	// Insight is the key the role's result is reported under in the resolution.
	Insight string
	// WithTransaction adds failure_details.transaction_id to the task context.
	WithTransaction bool
	// WithFailure adds failure_details to the task context.
	WithFailure bool
}

var paymentFailureRoles = []Role{
	{
		Name:            "payment_analysis",
		Skill:           "transaction-analysis",
		TaskPrefix:      "payment-analysis",
		Focus:           "payment_processing_analysis",
		Brief:           "This is part of a multi-agent incident response. Focus on payment gateway and transaction processing issues.",
		Insight:         "payment",
		WithTransaction: true,
		WithFailure:     true,
	},
	{
		Name:        "fraud_assessment",
		Skill:       "risk-assessment",
		TaskPrefix:  "fraud-check",
		Focus:       "fraud_risk_assessment",
		Brief:       "This is part of a multi-agent incident response. Focus on fraud risk while considering this customer's established relationship and transaction patterns.",
		Insight:     "fraud",
		WithFailure: true,
	},
	{
		Name:       "inventory_hold",
		Skill:      "inventory-hold",
		TaskPrefix: "inventory-hold",
		Focus:      "inventory_management",
		Brief:      "While payment issues are being resolved, secure inventory for this customer to prevent stockouts.",
		Insight:    "inventory",
	},
	{
		Name:        "system_diagnostics",
		Skill:       "system-diagnostics",
		TaskPrefix:  "system-diag",
		Focus:       "technical_infrastructure_analysis",
		Brief:       "Investigate the technical root cause of this payment failure. Focus on 3DS authentication services and payment gateway infrastructure.",
		Insight:     "technical",
		WithFailure: true,
	},
}

var genericRoles = []Role{
	{
		Name:        "general_support",
		Skill:       "general-support",
		TaskPrefix:  "general-support",
		Focus:       "customer_support",
		Brief:       "This is part of a multi-agent incident response. Triage the customer impact.",
		Insight:     "support",
		WithFailure: true,
	},
	{
		Name:        "system_diagnostics",
		Skill:       "system-diagnostics",
		TaskPrefix:  "system-diag",
		Focus:       "technical_infrastructure_analysis",
		Brief:       "Investigate the technical root cause of this incident.",
		Insight:     "technical",
		WithFailure: true,
	},
}

// RolesFor returns the roles an incident type needs, in dispatch order.
// Unknown types get the generic plan.
func RolesFor(incidentType string) []Role {
	if incidentType == TypePaymentFailure {
		return paymentFailureRoles
	}
	return genericRoles
}

// RequiredSkills returns the skills discovery must look for.
func RequiredSkills(incidentType string) []string {
	roles := RolesFor(incidentType)
	skills := make([]string, len(roles))
	for i, r := range roles {
		skills[i] = r.Skill
	}
	return skills
}

// TaskID returns the delegated task id for this role within an incident.
func (r *Role) TaskID(incidentID string) string {
	return r.TaskPrefix + "-" + incidentID
}

// BuildContext assembles the context payload sent to the role's agent.
func (r *Role) BuildContext(inc *Incident) map[string]any {
	ctx := map[string]any{
		"incident_id":          inc.ID,
		"customer":             inc.Customer,
		"order":                inc.Order,
		"agent_focus":          r.Focus,
		"coordination_context": r.Brief,
	}
	if r.WithFailure {
		ctx["failure_details"] = inc.FailureDetails
	}
	if r.WithTransaction {
		if txn, ok := inc.FailureDetails["transaction_id"]; ok {
			ctx["transaction_id"] = txn
		}
	}
	return ctx
}
