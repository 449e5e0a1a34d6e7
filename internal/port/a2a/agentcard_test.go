package a2a

import (
	"testing"

	"github.com/Strob0t/RelayForge/internal/domain/agent"
)

func TestNewCardDerivesEndpoints(t *testing.T) {
	card := NewCard(CardOptions{
		AgentID: "fraud-agent-001",
		Name:    "Fraud Agent",
		BaseURL: "http://localhost:8002/",
		Skills:  []agent.SkillSpec{{Name: "risk-assessment"}},
	})

	if card.CardVersion != CardVersion {
		t.Fatalf("expected card version %s, got %s", CardVersion, card.CardVersion)
	}
	if card.Endpoints.BaseURL != "http://localhost:8002" {
		t.Fatalf("expected trimmed base url, got %s", card.Endpoints.BaseURL)
	}
	if card.Endpoints.Tasks != "http://localhost:8002/tasks" {
		t.Fatalf("unexpected tasks endpoint %s", card.Endpoints.Tasks)
	}
	if !card.Capabilities.Streaming {
		t.Fatal("expected streaming capability")
	}
	if err := card.Validate(); err != nil {
		t.Fatalf("built card should validate: %v", err)
	}
}

func TestCardURL(t *testing.T) {
	if got := CardURL("http://a:1/"); got != "http://a:1/.well-known/agent.json" {
		t.Fatalf("unexpected card url %s", got)
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{StatusCode: 502}
	if err.Error() != "unexpected status 502" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	err.Body = "bad gateway"
	if err.Error() != "unexpected status 502: bad gateway" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
