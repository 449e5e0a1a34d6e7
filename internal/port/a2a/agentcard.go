package a2a

import (
	"strings"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
)

// CardVersion is the agent card format this module publishes.
const CardVersion = "1.0"

// CardOptions describes an agent for NewCard.
type CardOptions struct {
	AgentID     string
	Name        string
	Description string
	Version     string
	BaseURL     string
	Skills      []agent.SkillSpec
	Modalities  []string
}

// NewCard builds the card an agent serves at /.well-known/agent.json.
// Endpoints are derived from the base URL and streaming is always advertised.
func NewCard(o CardOptions) agent.Card {
	base := strings.TrimRight(o.BaseURL, "/")
	version := o.Version
	if version == "" {
		version = "1.0.0"
	}
	modalities := o.Modalities
	if len(modalities) == 0 {
		modalities = []string{"text", "structured_data"}
	}
	return agent.Card{
		CardVersion: CardVersion,
		Name:        o.Name,
		AgentID:     o.AgentID,
		Description: o.Description,
		Version:     version,
		Skills:      o.Skills,
		Authentication: agent.Authentication{
			Type:     "api_key",
			Location: "header",
			Name:     "X-API-Key",
		},
		Endpoints: agent.Endpoints{
			BaseURL:   base,
			Tasks:     base + "/tasks",
			Streaming: base + "/stream",
		},
		Capabilities: agent.Capabilities{
			Streaming:         true,
			PushNotifications: false,
			Modalities:        modalities,
		},
	}
}

// CardURL returns the well-known card address for an agent base URL.
func CardURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/.well-known/agent.json"
}
