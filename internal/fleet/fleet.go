// Package fleet holds the demo agents the relayforge binary can serve: their
// cards, default ports and deterministic skill handlers.
package fleet

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Strob0t/RelayForge/internal/domain"
	"github.com/Strob0t/RelayForge/internal/domain/agent"
	"github.com/Strob0t/RelayForge/internal/domain/task"
	"github.com/Strob0t/RelayForge/internal/port/a2a"
	"github.com/Strob0t/RelayForge/internal/service"
)

// Demo agent kinds.
const (
	KindPayment = "payment"
	KindFraud   = "fraud"
	KindOrder   = "order"
	KindTech    = "tech"
	KindSupport = "support"
)

// Default ports of the non-agent processes.
const (
	RegistryPort     = "8000"
	OrchestratorPort = "8001"
)

type profile struct {
	agentID     string
	name        string
	description string
	version     string
	homepage    string
	port        string
	modalities  []string
	skills      []agent.SkillSpec
	handlers    func(step time.Duration) map[task.Skill]service.Handler
}

var catalog = map[string]profile{
	KindPayment: paymentProfile,
	KindFraud:   fraudProfile,
	KindOrder:   orderProfile,
	KindTech:    techProfile,
	KindSupport: supportProfile,
}

// Kinds lists the demo agent kinds in lexical order.
func Kinds() []string {
	kinds := make([]string, 0, len(catalog))
	for k := range catalog {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// DefaultPort returns the port a demo agent kind listens on by default.
func DefaultPort(kind string) (string, error) {
	p, ok := catalog[kind]
	if !ok {
		return "", unknownKind(kind)
	}
	return p.port, nil
}

// DefaultAgentID returns the catalog agent id of a kind.
func DefaultAgentID(kind string) (string, error) {
	p, ok := catalog[kind]
	if !ok {
		return "", unknownKind(kind)
	}
	return p.agentID, nil
}

// Options customizes a demo agent definition.
type Options struct {
	// AgentID overrides the catalog id.
	AgentID string
	// Step is the simulated duration of each handler stage.
	Step time.Duration
}

// Definition builds the agent served at baseURL for kind.
func Definition(kind, baseURL string, o Options) (service.AgentDefinition, error) {
	p, ok := catalog[kind]
	if !ok {
		return service.AgentDefinition{}, unknownKind(kind)
	}
	id := p.agentID
	if o.AgentID != "" {
		id = o.AgentID
	}
	card := a2a.NewCard(a2a.CardOptions{
		AgentID:     id,
		Name:        p.name,
		Description: p.description,
		Version:     p.version,
		BaseURL:     baseURL,
		Skills:      p.skills,
		Modalities:  p.modalities,
	})
	card.Homepage = p.homepage
	return service.AgentDefinition{Card: card, Handlers: p.handlers(o.Step)}, nil
}

func unknownKind(kind string) error {
	return fmt.Errorf("%w: unknown agent kind %q (want one of %v)", domain.ErrValidation, kind, Kinds())
}

// pause waits d or until ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func objectSchema(props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, typ := range props {
		properties[name] = map[string]any{"type": typ}
	}
	return map[string]any{"type": "object", "properties": properties}
}
