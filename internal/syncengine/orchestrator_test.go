package syncengine

import (
	"testing"

	"ledgersync/internal/auth"
	"ledgersync/internal/config"
)

func TestBuildTokenSourcePrefersAccessToken(t *testing.T) {
	e := New(config.Config{AccessToken: "abc", UseKeycloak: true}, nil)
	src, err := e.buildTokenSource()
	if err != nil {
		t.Fatalf("buildTokenSource: %v", err)
	}
	if _, ok := src.(*auth.StaticSource); !ok {
		t.Errorf("expected --access-token to take precedence, got %T", src)
	}
}

func TestBuildTokenSourceUsesKeycloak(t *testing.T) {
	e := New(config.Config{UseKeycloak: true, KeycloakTokenEndpoint: "https://idp/token"}, nil)
	src, err := e.buildTokenSource()
	if err != nil {
		t.Fatalf("buildTokenSource: %v", err)
	}
	if _, ok := src.(*auth.OAuth2Source); !ok {
		t.Errorf("expected --use-keycloak to select OAuth2Source, got %T", src)
	}
}

func TestBuildTokenSourceRequiresTokenEndpointForKeycloak(t *testing.T) {
	e := New(config.Config{UseKeycloak: true}, nil)
	if _, err := e.buildTokenSource(); err == nil {
		t.Errorf("expected an error when keycloak.token_endpoint is unset")
	}
}

func TestBuildTokenSourceDefaultsToFake(t *testing.T) {
	e := New(config.Config{LedgerFakeUser: "op"}, nil)
	src, err := e.buildTokenSource()
	if err != nil {
		t.Fatalf("buildTokenSource: %v", err)
	}
	if _, ok := src.(*auth.FakeSource); !ok {
		t.Errorf("expected the fake source as the default, got %T", src)
	}
}
