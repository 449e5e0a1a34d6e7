package incident

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// Resolution status and strategy values.
const (
	ResolutionSuccess = "success"
	ResolutionFailed  = "failed"

	StrategyCoordinated = "coordinated_real_agent_response"
	StrategyManual      = "manual_intervention_required"
)

// Confidence policy. Full completion floors confidence, partial completion
// below the threshold caps it.
const (
	fullCompletionFloor  = 0.8
	partialThreshold     = 0.75
	partialCompletionCap = 0.6
	defaultConfidence    = 0.5
)

// Action is one concrete step the resolution reports as taken.
type Action map[string]any

// ActionExtractor maps a completed role's result to an action entry.
// It returns false when the result carries no actionable signal.
type ActionExtractor func(result map[string]any) (Action, bool)

// Resolution is the synthesized outcome of an incident.
type Resolution struct {
	ResolutionID   string                    `json:"resolution_id,omitempty"`
	Status         string                    `json:"status"`
	Strategy       string                    `json:"resolution_strategy"`
	Message        string                    `json:"message,omitempty"`
	Summary        string                    `json:"summary,omitempty"`
	Confidence     float64                   `json:"confidence"`
	CompletionRate float64                   `json:"completion_rate"`
	CompletedRoles int                       `json:"completed_roles"`
	TotalRoles     int                       `json:"total_roles"`
	ActionsTaken   []Action                  `json:"actions_taken"`
	AgentInsights  map[string]map[string]any `json:"agent_insights,omitempty"`
}

// Synthesizer turns per-role outcomes into a Resolution.
type Synthesizer struct {
	// Extractors maps role name to its action extractor.
	Extractors map[string]ActionExtractor
	// InsightKeys maps role name to the key its result is reported under.
	InsightKeys map[string]string
}

// DefaultSynthesizer knows the payment-failure roles and reports every other
// role's insight under its own name.
func DefaultSynthesizer() Synthesizer {
	keys := make(map[string]string)
	for _, roles := range [][]Role{paymentFailureRoles, genericRoles} {
		for _, r := range roles {
			keys[r.Name] = r.Insight
		}
	}
	return Synthesizer{
		Extractors: map[string]ActionExtractor{
			"payment_analysis":   paymentAction,
			"fraud_assessment":   fraudAction,
			"inventory_hold":     inventoryAction,
			"system_diagnostics": diagnosticsAction,
		},
		InsightKeys: keys,
	}
}

// AdjustConfidence applies the completion policy to an average confidence.
func AdjustConfidence(avg float64, completed, total int) float64 {
	if total == 0 || completed == 0 {
		return 0
	}
	rate := float64(completed) / float64(total)
	conf := avg * rate
	switch {
	case completed == total:
		return max(conf, fullCompletionFloor)
	case rate >= partialThreshold:
		return conf
	default:
		return min(conf, partialCompletionCap)
	}
}

// Synthesize computes the resolution for an incident's role outcomes.
func (s Synthesizer) Synthesize(incidentID string, tasks map[string]RoleTask) Resolution {
	total := len(tasks)
	names := make([]string, 0, total)
	for name := range tasks {
		names = append(names, name)
	}
	slices.Sort(names)

	var completed []string
	for _, name := range names {
		if tasks[name].Status == RoleCompleted {
			completed = append(completed, name)
		}
	}

	if len(completed) == 0 {
		return Resolution{
			Status:       ResolutionFailed,
			Strategy:     StrategyManual,
			Message:      "No tasks completed successfully",
			Confidence:   0,
			TotalRoles:   total,
			ActionsTaken: []Action{},
		}
	}

	res := Resolution{
		ResolutionID:   "res-" + incidentID,
		Status:         ResolutionSuccess,
		Strategy:       StrategyCoordinated,
		CompletedRoles: len(completed),
		TotalRoles:     total,
		CompletionRate: float64(len(completed)) / float64(total),
		ActionsTaken:   []Action{},
		AgentInsights:  make(map[string]map[string]any),
	}

	var confidences []float64
	for _, name := range completed {
		raw := tasks[name].Result
		result := Unwrap(raw)

		key := s.InsightKeys[name]
		if key == "" {
			key = name
		}
		if len(raw) > 0 {
			res.AgentInsights[key] = raw
		}

		if c, ok := Number(result["confidence"]); ok {
			confidences = append(confidences, c)
		}
		if extract, ok := s.Extractors[name]; ok {
			if action, ok := extract(result); ok {
				res.ActionsTaken = append(res.ActionsTaken, action)
			}
		}
	}

	avg := defaultConfidence
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		avg = sum / float64(len(confidences))
	}
	res.Confidence = AdjustConfidence(avg, len(completed), total)

	switch {
	case len(completed) == total:
		res.Summary = fmt.Sprintf("Incident successfully resolved via agent coordination. %d/%d agent analyses completed successfully.", len(completed), total)
	case res.CompletionRate >= partialThreshold:
		res.Summary = fmt.Sprintf("Incident largely resolved with %d/%d agent analyses completed.", len(completed), total)
	default:
		res.Summary = fmt.Sprintf("Incident partially resolved. %d/%d agent analyses completed.", len(completed), total)
	}
	return res
}

// Unwrap returns the skill output nested under "result" when present.
// Remote task snapshots carry the handler's output one level down.
func Unwrap(result map[string]any) map[string]any {
	if inner, ok := result["result"].(map[string]any); ok {
		return inner
	}
	return result
}

// Number reads a JSON-ish numeric value.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func confidenceOr(v any) float64 {
	if c, ok := Number(v); ok {
		return c
	}
	return defaultConfidence
}

func paymentAction(r map[string]any) (Action, bool) {
	if retry, _ := r["retry_recommended"].(bool); !retry {
		return nil, false
	}
	return Action{
		"action":     "payment_retry_authorized",
		"strategy":   stringOr(r["strategy"], "standard_retry"),
		"confidence": confidenceOr(r["confidence"]),
	}, true
}

func fraudAction(r map[string]any) (Action, bool) {
	var action string
	switch strings.ToUpper(stringOr(r["recommendation"], "")) {
	case "APPROVE":
		action = "fraud_clearance_granted"
	case "REVIEW":
		action = "fraud_review_required"
	default:
		return nil, false
	}
	return Action{
		"action":     action,
		"risk_level": stringOr(r["risk_level"], "UNKNOWN"),
		"confidence": confidenceOr(r["confidence"]),
	}, true
}

func inventoryAction(r map[string]any) (Action, bool) {
	holdID := stringOr(r["hold_id"], "")
	if holdID == "" {
		return nil, false
	}
	expedited, _ := r["expedited_shipping"].(bool)
	return Action{
		"action":             "inventory_secured",
		"hold_id":            holdID,
		"expedited_shipping": expedited,
	}, true
}

func diagnosticsAction(r map[string]any) (Action, bool) {
	diagnosis, ok := r["diagnosis"]
	if !ok || diagnosis == nil || diagnosis == "" {
		return nil, false
	}
	return Action{
		"action":    "system_issue_identified",
		"diagnosis": diagnosis,
		"severity":  stringOr(r["severity"], "unknown"),
	}, true
}
