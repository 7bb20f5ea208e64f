package domain

import (
	"errors"
	"testing"
)

func TestAnchorHashDeterministic(t *testing.T) {
	a := ResolutionHints{ProjectPath: "/repo/a", Workspace: "w1", Organization: "acme"}
	b := ResolutionHints{Organization: "acme", Workspace: "w1", ProjectPath: "/repo/a"}

	hashA, err := a.AnchorHash()
	if err != nil {
		t.Fatalf("anchor hash: %v", err)
	}
	hashB, err := b.AnchorHash()
	if err != nil {
		t.Fatalf("anchor hash: %v", err)
	}
	if hashA != hashB {
		t.Fatalf("expected identical hashes, got %s and %s", hashA, hashB)
	}
}

func TestAnchorHashIgnoresWhitespace(t *testing.T) {
	a := ResolutionHints{ProjectPath: " /repo/a ", Workspace: "w1"}
	b := ResolutionHints{ProjectPath: "/repo/a", Workspace: "w1"}

	hashA, err := a.AnchorHash()
	if err != nil {
		t.Fatalf("anchor hash: %v", err)
	}
	hashB, err := b.AnchorHash()
	if err != nil {
		t.Fatalf("anchor hash: %v", err)
	}
	if hashA != hashB {
		t.Fatal("expected whitespace-insensitive hash")
	}
}

func TestAnchorHashDistinguishesSubsets(t *testing.T) {
	a := ResolutionHints{ProjectPath: "/repo/a"}
	b := ResolutionHints{ProjectPath: "/repo/a", Workspace: "w1"}

	hashA, err := a.AnchorHash()
	if err != nil {
		t.Fatalf("anchor hash: %v", err)
	}
	hashB, err := b.AnchorHash()
	if err != nil {
		t.Fatalf("anchor hash: %v", err)
	}
	if hashA == hashB {
		t.Fatal("expected different hashes for different field subsets")
	}
}

func TestAnchorHashRequiresStableFields(t *testing.T) {
	h := ResolutionHints{SessionID: "s1", Platform: "cli"}
	if _, err := h.AnchorHash(); !errors.Is(err, ErrNoStableHints) {
		t.Fatalf("expected ErrNoStableHints, got %v", err)
	}
}

func TestStableFieldsExcludesSessionContext(t *testing.T) {
	h := ResolutionHints{ProjectPath: "/repo/a", SessionID: "s1", Platform: "cli"}
	fields := h.StableFields()
	if len(fields) != 1 {
		t.Fatalf("expected 1 stable field, got %d", len(fields))
	}
	if fields["project_path"] != "/repo/a" {
		t.Fatalf("unexpected fields %v", fields)
	}
}
