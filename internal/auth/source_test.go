package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func TestFakeSourceShape(t *testing.T) {
	src := NewFakeSource("alice")
	tok, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	parts := strings.Split(tok.Value, ".")
	if len(parts) != 3 {
		t.Fatalf("expected a 3-segment unsigned JWT, got %d segments", len(parts))
	}
	if parts[2] != "" {
		t.Errorf("expected an empty signature segment, got %q", parts[2])
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		t.Fatalf("unmarshal claims: %v", err)
	}
	for _, field := range []string{"sub", "aud", "iss", "scope", "exp"} {
		if _, ok := claims[field]; !ok {
			t.Errorf("expected claim %q in fake token", field)
		}
	}
	if claims["sub"] != "alice" {
		t.Errorf("expected sub=alice, got %v", claims["sub"])
	}
	if tok.ExpiresAt.IsZero() {
		t.Errorf("expected a non-zero expiry")
	}
}

func TestStaticSourceNeverExpires(t *testing.T) {
	src := NewStaticSource("abc123")
	tok, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if tok.Value != "abc123" {
		t.Errorf("expected the static token value to pass through unchanged, got %q", tok.Value)
	}
	if !tok.ExpiresAt.IsZero() {
		t.Errorf("expected a static token to never expire, got %v", tok.ExpiresAt)
	}
}
