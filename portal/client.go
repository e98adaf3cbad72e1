// Package portal is the signed HTTP client for the grades portal and its
// backend record store. Every governed call passes three gates in order:
// traffic-governor admission, request signing, then dispatch under a fixed
// deadline. Rate-limit rejections short-circuit before any signing or
// network work happens.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gradeport/go-portal-client/device"
	"github.com/gradeport/go-portal-client/governor"
	"github.com/gradeport/go-portal-client/signer"
	"github.com/gradeport/go-portal-client/store"
	"github.com/pkg/errors"
)

const (
	headerAppID     = "X-App-Id"
	headerSignature = "X-Request-Signature"

	defaultRequestTimeout = 15 * time.Second
)

// Client dispatches signed, governed requests to the portal.
type Client struct {
	baseURL      string
	appID        string
	httpClient   *http.Client
	governor     *governor.Governor
	signer       *signer.Signer
	store        store.Store
	fingerprints *device.Generator
	timeout      time.Duration
}

// ClientOption modifies a Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestTimeout overrides the per-request deadline.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithFingerprintGenerator replaces the device fingerprint generator.
func WithFingerprintGenerator(g *device.Generator) ClientOption {
	return func(c *Client) {
		c.fingerprints = g
	}
}

// NewClient initializes a Client with required dependencies.
func NewClient(baseURL, appID string, gov *governor.Governor, sig *signer.Signer, st store.Store, options ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[NewClient] baseURL is required")
	}
	if gov == nil {
		return nil, errors.New("[NewClient] governor is required")
	}
	if sig == nil {
		return nil, errors.New("[NewClient] signer is required")
	}
	if st == nil {
		return nil, errors.New("[NewClient] store is required")
	}

	client := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		appID:        appID,
		httpClient:   &http.Client{},
		governor:     gov,
		signer:       sig,
		store:        st,
		fingerprints: device.NewGenerator(),
		timeout:      defaultRequestTimeout,
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// CurrentRole reports the role currently held in durable storage. Wired as
// the governor's RoleFunc so role changes mid-session are seen immediately.
func (c *Client) CurrentRole() string {
	handle, err := c.store.Handle()
	if err != nil {
		return ""
	}
	return handle.Role
}

// Do performs one governed request. The signature bucket is regenerated per
// call and never cached. A rate-limit rejection propagates unmodified; a
// timeout and a generic connectivity failure surface as distinct errors.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if err := c.governor.CheckAndRecord(); err != nil {
		return err
	}

	signature := c.signer.Sign(method, body)

	var payload io.Reader
	if body != nil && signer.MethodCarriesBody(method) {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "[Do] json.Marshal body")
		}
		payload = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), c.baseURL+path, payload)
	if err != nil {
		return errors.Wrap(err, "[Do] http.NewRequestWithContext")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAppID, c.appID)
	req.Header.Set(headerSignature, signature)
	if handle, err := c.store.Handle(); err == nil && handle.Token != "" {
		req.Header.Set("Authorization", "Bearer "+handle.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Wrap(RequestTimeoutErr, "[Do] "+method+" "+path)
		}
		return errors.Wrap(ConnectivityErr, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return AuthExpiredErr
	case resp.StatusCode == http.StatusConflict:
		return SessionConflictErr
	case resp.StatusCode >= 400:
		return errors.Errorf("[Do] %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, fmt.Sprintf("[Do] decoding %s %s response", method, path))
	}
	return nil
}
