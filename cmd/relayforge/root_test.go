package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Strob0t/RelayForge/internal/fleet"
)

func TestKindsCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"kinds"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("kinds: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(fleet.Kinds()) {
		t.Fatalf("expected one line per kind, got %q", out.String())
	}
	if !strings.Contains(out.String(), "payment-sys-001") || !strings.Contains(out.String(), ":8002") {
		t.Fatalf("expected payment agent listing, got %q", out.String())
	}
}

func TestAgentRejectsUnknownKind(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"agent", "billing"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown agent kind") {
		t.Fatalf("expected unknown kind error, got %v", err)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"registry", "agent", "orchestrator", "kinds"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Fatalf("subcommand %s not registered: %v", name, err)
		}
	}
	if cmd.PersistentFlags().Lookup("config") == nil {
		t.Fatal("expected --config flag")
	}
}
