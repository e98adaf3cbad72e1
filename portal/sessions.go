package portal

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// SessionRecord mirrors the backend session store's row for one login. The
// store enforces at most one active record per username; the client only
// observes that invariant.
type SessionRecord struct {
	Username          string    `json:"username"`
	SessionID         string    `json:"sessionId"`
	DeviceFingerprint string    `json:"deviceFingerprint,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	IsActive          bool      `json:"isActive"`
}

// SessionService speaks the backend session-store protocol.
type SessionService struct {
	client *Client
}

// Sessions returns the session-store adapter.
func (c *Client) Sessions() *SessionService {
	return &SessionService{client: c}
}

// Create registers a fresh session. The backend atomically deactivates all
// prior records for the username before inserting the new one.
func (s *SessionService) Create(ctx context.Context, username, sessionID, deviceFingerprint string) error {
	record := SessionRecord{
		Username:          username,
		SessionID:         sessionID,
		DeviceFingerprint: deviceFingerprint,
	}
	if err := s.client.Do(ctx, "POST", "/sessions", record, nil); err != nil {
		return errors.Wrap(err, "[SessionService.Create]")
	}
	return nil
}

type sessionValidityResponse struct {
	Valid           bool   `json:"valid"`
	ActiveSessionID string `json:"activeSessionId,omitempty"`
}

// IsValid reports whether sessionID is still the account's single active
// session.
func (s *SessionService) IsValid(ctx context.Context, username, sessionID string) (bool, error) {
	query := url.Values{}
	query.Set("username", username)
	query.Set("sessionId", sessionID)

	var resp sessionValidityResponse
	if err := s.client.Do(ctx, "GET", "/sessions/validate?"+query.Encode(), nil, &resp); err != nil {
		return false, errors.Wrap(err, "[SessionService.IsValid]")
	}
	return resp.Valid, nil
}

// InvalidateAll deactivates every session record for the username.
func (s *SessionService) InvalidateAll(ctx context.Context, username string) error {
	query := url.Values{}
	query.Set("username", username)

	if err := s.client.Do(ctx, "DELETE", "/sessions?"+query.Encode(), nil, nil); err != nil {
		return errors.Wrap(err, "[SessionService.InvalidateAll]")
	}
	return nil
}
