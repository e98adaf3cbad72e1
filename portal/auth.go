package portal

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gradeport/go-portal-client/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type loginRequest struct {
	Username          string `json:"username"`
	Password          string `json:"password"`
	SessionID         string `json:"sessionId"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
}

type loginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role,omitempty"`
}

// Login authenticates against the portal and establishes the local session:
// the device fingerprint is captured once, a fresh session identifier is
// generated client-side, the session record is registered with the backend
// store (superseding any prior login for the account), and the handle plus
// fingerprint land in durable storage.
func (c *Client) Login(ctx context.Context, username, password string) (*store.Handle, error) {
	if username == "" || password == "" {
		return nil, errors.Wrap(LoginFailedErr, "[Login] username and password are required")
	}

	fingerprint := c.fingerprints.Generate()
	sessionID := uuid.New().String()

	var resp loginResponse
	err := c.Do(ctx, "POST", "/auth/login", loginRequest{
		Username:          username,
		Password:          password,
		SessionID:         sessionID,
		DeviceFingerprint: fingerprint.Hash,
	}, &resp)
	if err != nil {
		if errors.Is(err, AuthExpiredErr) {
			return nil, LoginFailedErr
		}
		return nil, errors.Wrap(err, "[Login] portal login")
	}
	if resp.Token == "" {
		return nil, errors.Wrap(LoginFailedErr, "[Login] empty token in response")
	}

	handle := &store.Handle{
		Token:     resp.Token,
		Username:  username,
		Role:      roleFromToken(resp.Token, resp.Role),
		SessionID: sessionID,
	}

	if err := c.Sessions().Create(ctx, username, sessionID, fingerprint.Hash); err != nil {
		return nil, errors.Wrap(err, "[Login] registering session record")
	}

	if err := c.store.SaveHandle(handle); err != nil {
		return nil, errors.Wrap(err, "[Login] persisting session handle")
	}
	if err := c.store.SaveFingerprint(fingerprint); err != nil {
		return nil, errors.Wrap(err, "[Login] persisting fingerprint")
	}

	log.Info().Str("username", username).Str("role", handle.Role).Msg("logged in")
	return handle, nil
}

// Logout invalidates the account's sessions best-effort and clears all
// local state. Remote failure never blocks the local clear.
func (c *Client) Logout(ctx context.Context) error {
	handle, err := c.store.Handle()
	if err == nil {
		if err := c.Sessions().InvalidateAll(ctx, handle.Username); err != nil {
			log.Warn().Err(err).Msg("remote session invalidation failed, clearing locally anyway")
		}
	}
	if err := c.store.Clear(); err != nil {
		return errors.Wrap(err, "[Logout] clearing local state")
	}
	log.Info().Msg("logged out")
	return nil
}

// roleFromToken prefers the role claim inside the portal JWT over the
// response field. The claim is read without signature verification — the
// client has no verification key and the role only gates client-side
// behavior; the server re-checks authorization on every call.
func roleFromToken(rawToken, fallback string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return fallback
	}
	if role, ok := claims["role"].(string); ok && role != "" {
		return role
	}
	return fallback
}

// usernameFromToken reads the subject claim from the portal JWT.
func usernameFromToken(rawToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, claims); err != nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}
