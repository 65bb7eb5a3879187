package mcp

import (
	"testing"
	"time"
)

func TestReplayGuardRejectsDuplicateWithinWindow(t *testing.T) {
	g := newReplayGuard(10 * time.Second)
	now := time.Unix(1700000000, 0)
	if !g.allow("ada", "sig_1", now) {
		t.Fatalf("expected first request to pass")
	}
	if g.allow("ada", "sig_1", now.Add(time.Second)) {
		t.Fatalf("expected duplicate signature to be rejected")
	}
	if !g.allow("ada", "sig_2", now.Add(time.Second)) {
		t.Fatalf("expected different signature to pass")
	}
	if !g.allow("bob", "sig_1", now.Add(time.Second)) {
		t.Fatalf("signatures are scoped per session")
	}
}

func TestReplayGuardAllowsAfterExpiry(t *testing.T) {
	g := newReplayGuard(2 * time.Second)
	now := time.Unix(1700000000, 0)
	g.allow("ada", "sig_1", now)
	if g.allow("ada", "sig_1", now.Add(time.Second)) {
		t.Fatalf("expected duplicate request in ttl to fail")
	}
	if !g.allow("ada", "sig_1", now.Add(3*time.Second)) {
		t.Fatalf("expected request after ttl expiry to pass")
	}
}
