package portal

import (
	"context"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/gradeport/go-portal-client/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OAuthProvider wraps one configured OpenID Connect identity provider. The
// provider authenticates the user; the verified ID token is then traded for
// a portal session.
type OAuthProvider struct {
	config   *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOAuthProvider discovers the issuer's endpoints and builds the exchange
// configuration.
func NewOAuthProvider(ctx context.Context, issuer, clientID, clientSecret, redirectURL string, scopes ...string) (*OAuthProvider, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, errors.Wrap(err, "[NewOAuthProvider] oidc.NewProvider")
	}
	return &OAuthProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     provider.Endpoint(),
			Scopes:       append([]string{oidc.ScopeOpenID, "profile", "email"}, scopes...),
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

// AuthCodeURL returns the provider URL the user visits to authenticate.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// exchange trades the authorization code for a verified raw ID token.
func (p *OAuthProvider) exchange(ctx context.Context, code string) (string, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return "", errors.Wrap(err, "[exchange] config.Exchange")
	}
	rawIDToken, ok := oauthToken.Extra("id_token").(string)
	if !ok {
		return "", errors.New("[exchange] no id_token in provider response")
	}
	if _, err := p.verifier.Verify(ctx, rawIDToken); err != nil {
		return "", errors.Wrap(err, "[exchange] verifying id_token")
	}
	return rawIDToken, nil
}

type oauthLoginRequest struct {
	IDToken           string `json:"idToken"`
	SessionID         string `json:"sessionId"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
}

// LoginWithProvider completes an OAuth authorization-code login: the code is
// exchanged and verified at the provider, then the ID token is presented to
// the portal for a session token. The rest of the flow matches Login.
func (c *Client) LoginWithProvider(ctx context.Context, provider *OAuthProvider, code string) (*store.Handle, error) {
	rawIDToken, err := provider.exchange(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "[LoginWithProvider] provider exchange")
	}

	fingerprint := c.fingerprints.Generate()
	sessionID := uuid.New().String()

	var resp loginResponse
	err = c.Do(ctx, "POST", "/auth/oauth", oauthLoginRequest{
		IDToken:           rawIDToken,
		SessionID:         sessionID,
		DeviceFingerprint: fingerprint.Hash,
	}, &resp)
	if err != nil {
		return nil, errors.Wrap(err, "[LoginWithProvider] portal exchange")
	}
	if resp.Token == "" {
		return nil, errors.Wrap(LoginFailedErr, "[LoginWithProvider] empty token in response")
	}

	username := usernameFromToken(resp.Token)
	handle := &store.Handle{
		Token:     resp.Token,
		Username:  username,
		Role:      roleFromToken(resp.Token, resp.Role),
		SessionID: sessionID,
	}

	if err := c.Sessions().Create(ctx, username, sessionID, fingerprint.Hash); err != nil {
		return nil, errors.Wrap(err, "[LoginWithProvider] registering session record")
	}
	if err := c.store.SaveHandle(handle); err != nil {
		return nil, errors.Wrap(err, "[LoginWithProvider] persisting session handle")
	}
	if err := c.store.SaveFingerprint(fingerprint); err != nil {
		return nil, errors.Wrap(err, "[LoginWithProvider] persisting fingerprint")
	}

	log.Info().Str("username", username).Msg("logged in via identity provider")
	return handle, nil
}
