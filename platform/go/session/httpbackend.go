package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xreason-ai/identity-core/platform/go/identity"
)

// HTTPBackend implements Backend against the identity REST API.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend builds an HTTPBackend for the API at baseURL. A nil client
// falls back to http.DefaultClient; callers wanting timeouts supply their own.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *HTTPBackend) Login(ctx context.Context, creds identity.Credentials) (identity.Session, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return identity.Session{}, fmt.Errorf("encode credentials: %w", err)
	}
	return b.sessionRequest(ctx, http.MethodPost, "/v1/auth/login", "", bytes.NewReader(body), identity.ErrCredentials)
}

func (b *HTTPBackend) ValidateSession(ctx context.Context, token string) (identity.Session, error) {
	return b.sessionRequest(ctx, http.MethodGet, "/v1/auth/session", token, nil, identity.ErrSessionExpired)
}

func (b *HTTPBackend) RefreshSession(ctx context.Context, token string) (identity.Session, error) {
	return b.sessionRequest(ctx, http.MethodPost, "/v1/auth/refresh", token, nil, identity.ErrSessionExpired)
}

func (b *HTTPBackend) Logout(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/auth/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("logout: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// sessionRequest performs a request expected to yield a session payload,
// mapping 401 responses onto authFailure.
func (b *HTTPBackend) sessionRequest(ctx context.Context, method, path, token string, body io.Reader, authFailure error) (identity.Session, error) {
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return identity.Session{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return identity.Session{}, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer drain(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return identity.Session{}, fmt.Errorf("%w: %s", authFailure, problemDetail(resp.Body))
	case resp.StatusCode >= http.StatusBadRequest:
		return identity.Session{}, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, problemDetail(resp.Body))
	}

	var sess identity.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return identity.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

// problemDetail extracts the detail field from an application/problem+json
// body, falling back to the raw text.
func problemDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}
	var problem struct {
		Detail string `json:"detail"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(raw, &problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}
		if problem.Title != "" {
			return problem.Title
		}
	}
	return strings.TrimSpace(string(raw))
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
