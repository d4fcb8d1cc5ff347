package app

import (
	"context"
	"testing"

	"github.com/strikeline/arena/internal/match/verdict"
	"github.com/strikeline/arena/internal/telemetry"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry(nil, telemetry.NewEmitter(nil), nil)
	t.Cleanup(registry.Shutdown)
	return registry
}

func TestRegistryCreateAndResolve(t *testing.T) {
	registry := newTestRegistry(t)

	matchID, err := registry.Create(context.Background(), "m1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if matchID != "m1" {
		t.Fatalf("match id = %q, want m1", matchID)
	}

	match, broadcaster, ok := registry.Match("m1")
	if !ok || match == nil || broadcaster == nil {
		t.Fatal("created match must resolve")
	}
	if _, _, ok := registry.Match("unknown"); ok {
		t.Fatal("unknown match must not resolve")
	}
}

func TestRegistryCreateGeneratesID(t *testing.T) {
	registry := newTestRegistry(t)

	matchID, err := registry.Create(context.Background(), "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if matchID == "" {
		t.Fatal("empty match id must be generated")
	}
	if _, _, ok := registry.Match(matchID); !ok {
		t.Fatal("generated match must resolve")
	}
}

func TestRegistryCreateDuplicate(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.Create(context.Background(), "m1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := registry.Create(context.Background(), "m1"); err == nil {
		t.Fatal("duplicate create must fail")
	}
}

func TestRegistryCancelRemovesMatch(t *testing.T) {
	registry := newTestRegistry(t)

	if _, err := registry.Create(context.Background(), "m1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	live, _, ok := registry.Match("m1")
	if !ok {
		t.Fatal("match must resolve before cancel")
	}
	sess := live.(interface {
		Verdict() (verdict.Verdict, bool)
	})

	if err := registry.Cancel("m1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	v, ok := sess.Verdict()
	if !ok || v.Outcome != verdict.OutcomeCancelled {
		t.Fatalf("verdict = %+v (%v), want CANCELLED", v, ok)
	}
	if _, _, ok := registry.Match("m1"); ok {
		t.Fatal("cancelled match must be removed")
	}

	if err := registry.Cancel("m1"); err == nil {
		t.Fatal("cancelling a removed match must fail")
	}
}

func TestRegistryShutdownCancelsAll(t *testing.T) {
	registry := NewRegistry(nil, telemetry.NewEmitter(nil), nil)

	for _, matchID := range []string{"m1", "m2"} {
		if _, err := registry.Create(context.Background(), matchID); err != nil {
			t.Fatalf("create %s: %v", matchID, err)
		}
	}
	registry.Shutdown()

	for _, matchID := range []string{"m1", "m2"} {
		if _, _, ok := registry.Match(matchID); ok {
			t.Fatalf("match %s must be removed after shutdown", matchID)
		}
	}
}
