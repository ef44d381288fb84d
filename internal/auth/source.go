package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Token is an immutable bearer-credential record. A fresh Token is swapped
// in atomically by Manager; nothing ever mutates one in place.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

func (t *Token) expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// Source acquires a bearer token. Implementations report ExpiresAt as the
// zero time when the token never expires.
type Source interface {
	Fetch(ctx context.Context) (*Token, error)
}

// StaticSource wraps an operator-supplied --access-token. It never
// expires, so Manager never schedules a refresh for it.
type StaticSource struct {
	token string
}

func NewStaticSource(token string) *StaticSource { return &StaticSource{token: token} }

func (s *StaticSource) Fetch(context.Context) (*Token, error) {
	return &Token{Value: s.token}, nil
}

// FakeSource constructs an unsigned sandbox JWT with claims
// {sub, aud, iss, scope, exp = now+24h},
// base64url header and payload, empty signature segment — the minimal
// compatible stand-in since no signing key exists in sandbox mode.
type FakeSource struct {
	user string
}

func NewFakeSource(user string) *FakeSource { return &FakeSource{user: user} }

func (s *FakeSource) Fetch(context.Context) (*Token, error) {
	now := nowFunc()
	exp := now.Add(24 * time.Hour)

	header := map[string]any{"alg": "none", "typ": "JWT"}
	claims := map[string]any{
		"sub":   s.user,
		"aud":   "https://daml.com/ledger-api",
		"iss":   "ledgersync-fake",
		"scope": "daml_ledger_api",
		"exp":   exp.Unix(),
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshal fake jwt header: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("marshal fake jwt claims: %w", err)
	}

	enc := base64.RawURLEncoding
	jwt := enc.EncodeToString(headerJSON) + "." + enc.EncodeToString(claimsJSON) + "."

	return &Token{Value: jwt, ExpiresAt: exp}, nil
}

// GrantType selects the OAuth2 flow an OAuth2Source performs.
type GrantType string

const (
	GrantClientCredentials   GrantType = "client_credentials"
	GrantResourceOwnerPasswd GrantType = "password"
)

// OAuth2Config carries the keycloak.* configuration section.
type OAuth2Config struct {
	ClientID      string
	TokenEndpoint string
	GrantType     GrantType
	ClientSecret  string
	Username      string
	Password      string
	Scopes        []string
}

// OAuth2Source acquires tokens from a real OAuth2 token endpoint, selecting
// the grant per configuration.
type OAuth2Source struct {
	cfg OAuth2Config
}

func NewOAuth2Source(cfg OAuth2Config) *OAuth2Source { return &OAuth2Source{cfg: cfg} }

func (s *OAuth2Source) Fetch(ctx context.Context) (*Token, error) {
	switch s.cfg.GrantType {
	case GrantClientCredentials:
		return s.fetchClientCredentials(ctx)
	case GrantResourceOwnerPasswd:
		return s.fetchPasswordCredentials(ctx)
	default:
		return nil, fmt.Errorf("unsupported oauth2 grant type %q", s.cfg.GrantType)
	}
}

func (s *OAuth2Source) fetchClientCredentials(ctx context.Context) (*Token, error) {
	cc := clientcredentials.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		TokenURL:     s.cfg.TokenEndpoint,
		Scopes:       s.cfg.Scopes,
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("client_credentials token fetch: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func (s *OAuth2Source) fetchPasswordCredentials(ctx context.Context) (*Token, error) {
	conf := oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Scopes:       s.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			TokenURL: s.cfg.TokenEndpoint,
		},
	}
	tok, err := conf.PasswordCredentialsToken(ctx, s.cfg.Username, s.cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("password token fetch: %w", err)
	}
	return fromOAuth2Token(tok), nil
}

func fromOAuth2Token(tok *oauth2.Token) *Token {
	return &Token{Value: tok.AccessToken, ExpiresAt: tok.Expiry}
}

// nowFunc is overridden in tests to make expiry deterministic.
var nowFunc = time.Now
